package bgeigie

import "time"

// Measurement is one decoded bGeigie sample. A Measurement is only ever
// produced from a sentence that passed header matching and checksum
// verification; it is immutable after decoding.
type Measurement struct {
	DeviceID   int
	CapturedAt time.Time

	// TimeEstimated is set when the sentence timestamp did not parse and
	// CapturedAt was substituted with the processing time.
	TimeEstimated bool

	// CPM is the one-minute count, the primary measured quantity.
	CPM int

	// Newer formats carry these; older exports leave them at their
	// documented defaults (zero counts, invalid flags, absent optionals).
	CP5s       int
	TotalCount int
	CPMValid   bool
	Latitude   float64
	Longitude  float64
	AltitudeM  *float64
	GPSValid   bool
	HDOP       *float64
	FixQuality *int
}
