package enums

import (
	"fmt"
	"time"
)

// Granularity is the bucket width of a revenue chart.
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
	GranularityMonth  Granularity = "month"
	GranularityYear   Granularity = "year"
)

var granularityLayouts = map[Granularity]string{
	GranularityMinute: "2006-01-02 15:04",
	GranularityHour:   "2006-01-02 15:00",
	GranularityDay:    "2006-01-02",
	GranularityMonth:  "2006-01",
	GranularityYear:   "2006",
}

// String implements fmt.Stringer.
func (g Granularity) String() string {
	return string(g)
}

// IsValid reports whether the value is a known Granularity.
func (g Granularity) IsValid() bool {
	_, ok := granularityLayouts[g]
	return ok
}

// Label formats t as the x-axis label of the bucket containing it.
// t must already be in the desired location.
func (g Granularity) Label(t time.Time) string {
	layout, ok := granularityLayouts[g]
	if !ok {
		layout = granularityLayouts[GranularityDay]
	}
	return t.Format(layout)
}

// ParseGranularity converts raw input into a Granularity.
func ParseGranularity(value string) (Granularity, error) {
	g := Granularity(value)
	if g.IsValid() {
		return g, nil
	}
	return "", fmt.Errorf("invalid granularity %q", value)
}
