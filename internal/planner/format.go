package planner

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/playperu/wayfinder/internal/directions"
)

// MetersToMiles converts meters to statute miles.
const MetersToMiles = 0.000621371

// Formatter renders route durations and distances for one locale.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter returns a Formatter for tag. Unknown tags fall back to the
// closest supported locale.
func NewFormatter(tag language.Tag) *Formatter {
	return &Formatter{printer: message.NewPrinter(tag)}
}

var defaultFormatter = NewFormatter(language.AmericanEnglish)

// FormatDuration renders seconds as "N min" up to one hour, and as
// "H hr M min" above that. Minutes are always rounded up.
func FormatDuration(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	if seconds <= 3600 {
		return fmt.Sprintf("%d min", int64(math.Ceil(seconds/60)))
	}

	hours := int64(math.Floor(seconds / 3600))
	minutes := int64(math.Ceil(math.Mod(seconds, 3600) / 60))
	if minutes == 60 {
		hours++
		minutes = 0
	}
	return fmt.Sprintf("%d hr %d min", hours, minutes)
}

// FormatDistance renders meters as miles in US English.
func FormatDistance(meters float64) string {
	return defaultFormatter.Distance(meters)
}

// Duration is FormatDuration; durations carry no locale-specific digits.
func (f *Formatter) Duration(seconds float64) string {
	return FormatDuration(seconds)
}

// Distance renders meters as miles with at most one fractional digit and
// the locale's digit grouping, e.g. "1,242.7 mi".
func (f *Formatter) Distance(meters float64) string {
	if meters < 0 || math.IsNaN(meters) {
		meters = 0
	}
	miles := math.Round(meters*MetersToMiles*10) / 10
	return f.printer.Sprintf("%v mi", number.Decimal(miles, number.MaxFractionDigits(1)))
}

// RouteView is the display form of a route.
type RouteView struct {
	Duration string
	Distance string
}

// View derives the display strings of r.
func (f *Formatter) View(r directions.Route) RouteView {
	return RouteView{
		Duration: f.Duration(r.DurationSeconds),
		Distance: f.Distance(r.DistanceMeters),
	}
}
