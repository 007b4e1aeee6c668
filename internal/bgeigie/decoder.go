package bgeigie

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Sentence layout, comma-separated after the header token:
//
//	 0: header ($BNXRDD etc.)
//	 1: device id
//	 2: timestamp (ISO 8601 with zone suffix, or "yyyy-mm-dd hh:mm:ss")
//	 3: one-minute count (cpm)
//	 4: five-second count
//	 5: cumulative total count
//	 6: count validity (A=valid, V=void)
//	 7: latitude (ddmm.mmmm)
//	 8: N/S
//	 9: longitude (dddmm.mmmm)
//	10: E/W
//	11: altitude (meters)
//	12: GPS validity (A=valid, V=void)
//	13: HDOP
//	14: GPS fix quality
//
// Older exports stop after field 3; everything past it is read
// defensively with documented defaults.
const minSentenceFields = 4

// Altitude plausibility band in meters. Values outside it are treated
// as corrupt and resolve to absent.
const (
	minPlausibleAltitudeM = -5000.0
	maxPlausibleAltitudeM = 50000.0
)

// DefaultHeaders lists the sentence-header tokens produced by the
// bGeigie exporter family over the years. All share the field layout
// above.
func DefaultHeaders() []string {
	return []string{"$BGRDD", "$BMRDD", "$BNRDD", "$BNXRDD", "$CZRDD", "$PNTDD"}
}

// LineResult is the outcome of decoding one line. Callers filter on
// Skipped rather than relying on errors; a skipped line never aborts
// the surrounding file.
type LineResult struct {
	Measurement Measurement
	Skipped     bool
	Reason      string
}

// Decoder turns raw log lines into Measurements. Decoding is pure and
// restartable: the same input always yields the same results.
type Decoder struct {
	headers map[string]struct{}
	log     *slog.Logger
	now     func() time.Time
}

// NewDecoder builds a Decoder accepting the given header tokens
// (DefaultHeaders when nil).
func NewDecoder(headers []string, log *slog.Logger) *Decoder {
	if len(headers) == 0 {
		headers = DefaultHeaders()
	}
	if log == nil {
		log = slog.Default()
	}
	set := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		set[strings.ToUpper(strings.TrimSpace(h))] = struct{}{}
	}
	return &Decoder{headers: set, log: log, now: time.Now}
}

// Decode decodes a single line. Once the checksum has passed, decoding
// is all-or-nothing: any field-level conversion failure skips the whole
// line.
func (d *Decoder) Decode(line string) LineResult {
	line = strings.TrimSpace(line)

	head := line
	if i := strings.IndexByte(line, ','); i != -1 {
		head = line[:i]
	}
	if _, ok := d.headers[strings.ToUpper(head)]; !ok {
		return skip("unrecognized header")
	}

	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return skip("missing end marker")
	}
	sentence := line[:star]
	if strings.TrimSpace(line[star+1:]) == "" {
		return skip("missing checksum")
	}
	if !Verify(line) {
		return skip("checksum mismatch")
	}

	f := strings.Split(sentence, ",")
	if len(f) < minSentenceFields {
		return skip("short sentence")
	}

	var m Measurement

	dev, err := strconv.Atoi(strings.TrimSpace(f[1]))
	if err != nil {
		return skip("bad device id")
	}
	m.DeviceID = dev

	ts := strings.TrimSpace(f[2])
	when, ok := parseTimestamp(ts)
	if !ok {
		// Availability over precision: keep the sample, flag the fabricated
		// timestamp in the log and on the record.
		when = d.now().UTC()
		m.TimeEstimated = true
		d.log.Warn("sentence timestamp unparsable, substituting processing time", "timestamp", ts)
	}
	m.CapturedAt = when

	cpmStr := strings.TrimSpace(f[3])
	if cpmStr == "" {
		return skip("missing count-rate")
	}
	cpm, err := strconv.Atoi(cpmStr)
	if err != nil {
		return skip("bad count-rate")
	}
	m.CPM = cpm

	if m.CP5s, ok = optionalInt(f, 4); !ok {
		return skip("bad five-second count")
	}
	if m.TotalCount, ok = optionalInt(f, 5); !ok {
		return skip("bad total count")
	}
	m.CPMValid = fieldAt(f, 6) == "A"

	m.Latitude = ToDecimalDegrees(fieldAt(f, 7), fieldAt(f, 8))
	m.Longitude = ToDecimalDegrees(fieldAt(f, 9), fieldAt(f, 10))

	if s := fieldAt(f, 11); s != "" {
		alt, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return skip("bad altitude")
		}
		if alt >= minPlausibleAltitudeM && alt <= maxPlausibleAltitudeM {
			m.AltitudeM = &alt
		}
	}
	m.GPSValid = fieldAt(f, 12) == "A"

	if s := fieldAt(f, 13); s != "" {
		hdop, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return skip("bad hdop")
		}
		m.HDOP = &hdop
	}
	if s := fieldAt(f, 14); s != "" {
		q, err := strconv.Atoi(s)
		if err != nil {
			return skip("bad fix quality")
		}
		m.FixQuality = &q
	}

	return LineResult{Measurement: m}
}

// DecodeAll decodes every line of a log. Blank lines and '#' comments
// are dropped outright; every other line yields a LineResult, however
// malformed. A bad line never stops the walk over the rest of the log.
func (d *Decoder) DecodeAll(content []byte) []LineResult {
	var out []LineResult
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, d.Decode(line))
	}
	return out
}

// Accepted extracts the decoded measurements from a result sequence.
func Accepted(results []LineResult) []Measurement {
	ms := make([]Measurement, 0, len(results))
	for _, r := range results {
		if !r.Skipped {
			ms = append(ms, r.Measurement)
		}
	}
	return ms
}

func skip(reason string) LineResult {
	return LineResult{Skipped: true, Reason: reason}
}

func fieldAt(f []string, i int) string {
	if i < len(f) {
		return strings.TrimSpace(f[i])
	}
	return ""
}

// optionalInt reads a numeric field that older formats omit: absent or
// empty resolves to zero, present garbage fails.
func optionalInt(f []string, i int) (int, bool) {
	s := fieldAt(f, i)
	if s == "" {
		return 0, true
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseTimestamp(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
