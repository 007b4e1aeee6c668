package jobs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bgeigie-hub/internal/bgeigie"
	"bgeigie-hub/internal/quality"
	"bgeigie-hub/internal/store"
)

func sentence(payload string) string {
	var ck byte
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

// driveLog builds a log of n valid sentences around a fixed position.
func driveLog(n, cpm int) []byte {
	var b strings.Builder
	for i := 0; i < n; i++ {
		payload := fmt.Sprintf("BNXRDD,300,2012-12-16T17:%02d:%02dZ,%d,2,39,A,4618.9996,N,00658.4623,E,443.7,A,1.28,1",
			i/60, i%60, cpm)
		b.WriteString(sentence(payload))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

type statusChange struct {
	Status store.ImportStatus
	Actor  string
}

type fakeStore struct {
	mu       sync.Mutex
	sources  map[int64][]byte
	written  map[int64][]bgeigie.Measurement
	statuses map[int64][]statusChange
	events   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sources:  make(map[int64][]byte),
		written:  make(map[int64][]bgeigie.Measurement),
		statuses: make(map[int64][]statusChange),
	}
}

func (f *fakeStore) SourceBytes(_ context.Context, id int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fmt.Sprintf("read:%d", id))
	b, ok := f.sources[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) WriteMeasurements(_ context.Context, id int64, ms []bgeigie.Measurement) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fmt.Sprintf("write:%d", id))
	f.written[id] = ms
	return len(ms), nil
}

func (f *fakeStore) SetImportStatus(_ context.Context, id int64, status store.ImportStatus, actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fmt.Sprintf("status:%d:%s", id, status))
	f.statuses[id] = append(f.statuses[id], statusChange{status, actor})
	return nil
}

func (f *fakeStore) lastStatus(id int64) (statusChange, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs := f.statuses[id]
	if len(cs) == 0 {
		return statusChange{}, false
	}
	return cs[len(cs)-1], true
}

func (f *fakeStore) eventIndex(ev string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.events {
		if e == ev {
			return i
		}
	}
	return -1
}

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (f *fakeNotifier) Notify(_ context.Context, kind string, importID int64, _ string, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s:%d", kind, importID))
	return f.err
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testQueue(t *testing.T, st Store, n Notifier) *Queue {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := New(Config{QueueSize: 64, WaitTimeout: 10 * time.Millisecond, Recipient: "ops@example.org"},
		bgeigie.NewDecoder(nil, log), quality.NewGate(quality.DefaultThresholds()), st, n, log)
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q
}

func TestIngest_AutoApproves(t *testing.T) {
	st := newFakeStore()
	st.sources[1] = driveLog(150, 42)
	nt := &fakeNotifier{}
	q := testQueue(t, st, nt)

	_, err := q.EnqueueDecodeAndIngest(1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		c, ok := st.lastStatus(1)
		return ok && c.Status == store.StatusApproved
	}, 2*time.Second, 5*time.Millisecond)

	c, _ := st.lastStatus(1)
	assert.Equal(t, "auto-approval", c.Actor)
	st.mu.Lock()
	assert.Len(t, st.written[1], 150)
	st.mu.Unlock()

	require.Eventually(t, func() bool { return nt.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	nt.mu.Lock()
	assert.Equal(t, "import_approved:1", nt.calls[0])
	nt.mu.Unlock()
}

func TestIngest_ProcessedWithoutApproval(t *testing.T) {
	st := newFakeStore()
	st.sources[1] = driveLog(50, 42) // below the record threshold
	nt := &fakeNotifier{}
	q := testQueue(t, st, nt)

	_, err := q.EnqueueDecodeAndIngest(1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		c, ok := st.lastStatus(1)
		return ok && c.Status == store.StatusProcessed
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return nt.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	nt.mu.Lock()
	assert.Equal(t, "import_processed:1", nt.calls[0])
	nt.mu.Unlock()
}

func TestIngest_ImplausibleRowsDoNotCountTowardApproval(t *testing.T) {
	st := newFakeStore()
	// 92 plausible rows plus 8 rows whose coordinates resolve to the
	// origin sentinel: 100 decode, only 92 survive the filter, so the
	// record threshold is not met.
	var b strings.Builder
	b.Write(driveLog(92, 42))
	for i := 0; i < 8; i++ {
		b.WriteString(sentence(fmt.Sprintf("BNRDD,47,2011-03-21T09:58:%02dZ,52", i)))
		b.WriteByte('\n')
	}
	st.sources[1] = []byte(b.String())
	nt := &fakeNotifier{}
	q := testQueue(t, st, nt)

	_, err := q.EnqueueDecodeAndIngest(1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		c, ok := st.lastStatus(1)
		return ok && c.Status == store.StatusProcessed
	}, 2*time.Second, 5*time.Millisecond)

	c, _ := st.lastStatus(1)
	assert.Equal(t, "ingest", c.Actor)
	st.mu.Lock()
	assert.Len(t, st.written[1], 92)
	st.mu.Unlock()
}

func TestQueue_ArrivalOrder(t *testing.T) {
	st := newFakeStore()
	st.sources[1] = driveLog(10, 42)
	st.sources[2] = driveLog(10, 42)
	q := testQueue(t, st, &fakeNotifier{})

	_, err := q.EnqueueDecodeAndIngest(1)
	require.NoError(t, err)
	_, err = q.EnqueueDecodeAndIngest(2)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := st.lastStatus(2)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	// Job 1 must reach its terminal state strictly before job 2 begins.
	assert.Less(t, st.eventIndex("status:1:processed"), st.eventIndex("read:2"))
}

func TestQueue_FailedJobDoesNotHaltConsumer(t *testing.T) {
	st := newFakeStore()
	st.sources[3] = driveLog(10, 42)
	// Import 2 has no source bytes: its job fails with a reason.
	q := testQueue(t, st, &fakeNotifier{})

	_, err := q.EnqueueDecodeAndIngest(2)
	require.NoError(t, err)
	_, err = q.EnqueueDecodeAndIngest(3)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		c, ok := st.lastStatus(3)
		return ok && c.Status == store.StatusProcessed
	}, 2*time.Second, 5*time.Millisecond)

	// The failed import keeps its last-good state: no status written.
	_, ok := st.lastStatus(2)
	assert.False(t, ok)
}

func TestQueue_NotificationFailureSwallowed(t *testing.T) {
	st := newFakeStore()
	st.sources[1] = driveLog(10, 42)
	nt := &fakeNotifier{err: fmt.Errorf("smtp down")}
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	q := New(Config{QueueSize: 16, WaitTimeout: 10 * time.Millisecond},
		bgeigie.NewDecoder(nil, log), quality.NewGate(quality.DefaultThresholds()), st, nt, log)
	q.Start(context.Background())
	defer q.Stop()

	_, err := q.EnqueueDecodeAndIngest(1)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return nt.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "notification delivery failed")
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotContains(t, buf.String(), "job failed")
}

func TestQueue_EnqueueAfterStopRejected(t *testing.T) {
	q := testQueue(t, newFakeStore(), &fakeNotifier{})
	q.Stop()
	_, err := q.EnqueueDecodeAndIngest(1)
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestQueue_EnqueueNeverBlocks(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := New(Config{QueueSize: 1, WaitTimeout: 10 * time.Millisecond},
		bgeigie.NewDecoder(nil, log), quality.NewGate(quality.DefaultThresholds()),
		newFakeStore(), &fakeNotifier{}, log)
	// Not started: the channel fills immediately.
	_, err := q.EnqueueValidate(nil)
	require.NoError(t, err)
	_, err = q.EnqueueValidate(nil)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestValidateBatchJob(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	q := New(Config{QueueSize: 16, WaitTimeout: 10 * time.Millisecond},
		bgeigie.NewDecoder(nil, log), quality.NewGate(quality.DefaultThresholds()),
		newFakeStore(), &fakeNotifier{}, log)
	q.Start(context.Background())
	defer q.Stop()

	ms := make([]bgeigie.Measurement, 120)
	for i := range ms {
		ms[i] = bgeigie.Measurement{CPM: 40, Latitude: 46.3, Longitude: 6.9}
	}
	_, err := q.EnqueueValidate(ms)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "batch validated")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, buf.String(), "auto_approve=true")
}
