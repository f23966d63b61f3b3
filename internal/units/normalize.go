// Package units converts provider-native values into the canonical units all
// downstream code assumes: temperature °F, wind speed mph, precipitation mm,
// probability percent (or the "n/a" sentinel).
package units

import (
	"log"
	"math"

	"github.com/forecastlab/weather-compare/internal/forecast"
)

// Unit tags the physical unit of a raw provider value.
type Unit string

const (
	UnitCelsius     Unit = "c"
	UnitFahrenheit  Unit = "f"
	UnitMillimeters Unit = "mm"
	UnitInches      Unit = "in"
	UnitKPH         Unit = "kph"
	UnitMPH         Unit = "mph"
	UnitMPS         Unit = "m/s"

	// UnitNone means the payload carried no per-value tag and the provider's
	// documented default applies.
	UnitNone Unit = ""
)

// FieldState distinguishes a genuine value from a substituted default and
// from malformed input, so callers never mistake "no data" for zero.
type FieldState int

const (
	// FieldDefaulted is the zero value, so an absent field decodes to a
	// defaulted zero rather than a spuriously valid one.
	FieldDefaulted FieldState = iota
	FieldValid
	FieldMalformed
)

// Field is a raw numeric payload field together with its parse outcome.
type Field struct {
	Value float64
	State FieldState
}

// Valid wraps a value that was present and well formed.
func Valid(v float64) Field { return Field{Value: v, State: FieldValid} }

// Defaulted wraps an acceptable substitute for a missing field.
func Defaulted(v float64) Field { return Field{Value: v, State: FieldDefaulted} }

// Malformed marks a field that was present but unusable.
func Malformed() Field { return Field{State: FieldMalformed} }

// Usable reports whether the field carries a number downstream code may read.
func (f Field) Usable() bool { return f.State != FieldMalformed }

// Defaults is the documented native unit set for one provider. Providers are
// inconsistent, and at least one tags precipitation differently than its
// documentation claims, so per-value tags override these (see Resolve).
type Defaults struct {
	Temperature   Unit
	WindSpeed     Unit
	Precipitation Unit
}

// providerDefaults is the per-provider unit table. Every configured source
// must have an entry; unknown sources fall back to canonical units.
var providerDefaults = map[string]Defaults{
	"openweathermap": {Temperature: UnitCelsius, WindSpeed: UnitMPS, Precipitation: UnitMillimeters},
	"weatherapi":     {Temperature: UnitCelsius, WindSpeed: UnitKPH, Precipitation: UnitMillimeters},
	"openmeteo":      {Temperature: UnitCelsius, WindSpeed: UnitKPH, Precipitation: UnitMillimeters},
}

// Normalizer converts raw provider fields into canonical units. Constructed
// once at startup and passed to every provider client.
type Normalizer struct {
	defaults map[string]Defaults
}

// NewNormalizer creates a Normalizer with the documented provider table.
func NewNormalizer() *Normalizer {
	return &Normalizer{defaults: providerDefaults}
}

// Resolve decides which unit a value is actually in. An explicit payload tag
// wins over the provider's documented default. An unrecognized tag is treated
// as the less trusted unit for that dimension and logged, never dropped.
func (n *Normalizer) Resolve(source string, dimension string, tag Unit) Unit {
	def, ok := n.defaults[source]
	if !ok {
		def = Defaults{Temperature: UnitFahrenheit, WindSpeed: UnitMPH, Precipitation: UnitMillimeters}
	}

	var fallback Unit
	var known []Unit
	switch dimension {
	case "temperature":
		fallback, known = def.Temperature, []Unit{UnitCelsius, UnitFahrenheit}
	case "wind":
		fallback, known = def.WindSpeed, []Unit{UnitKPH, UnitMPH, UnitMPS}
	case "precipitation":
		fallback, known = def.Precipitation, []Unit{UnitMillimeters, UnitInches}
	default:
		return tag
	}

	if tag == UnitNone {
		return fallback
	}
	for _, u := range known {
		if tag == u {
			return tag
		}
	}
	if dimension == "precipitation" {
		log.Printf("WARN: %s: unrecognized precipitation unit tag %q, treating as inches", source, tag)
		return UnitInches
	}
	log.Printf("WARN: %s: unrecognized %s unit tag %q, using documented default %q", source, dimension, tag, fallback)
	return fallback
}

// Temperature converts a raw temperature to °F.
func (n *Normalizer) Temperature(source string, value float64, tag Unit) float64 {
	switch n.Resolve(source, "temperature", tag) {
	case UnitCelsius:
		return value*9/5 + 32
	default:
		return value
	}
}

// WindSpeed converts a raw wind speed to mph.
func (n *Normalizer) WindSpeed(source string, value float64, tag Unit) float64 {
	switch n.Resolve(source, "wind", tag) {
	case UnitKPH:
		return value * 0.621371
	case UnitMPS:
		return value * 3.6 * 0.621371
	default:
		return value
	}
}

// Precipitation converts a raw precipitation amount to mm and applies the
// rounding policy. This is the only place rounding happens; downstream code
// never re-rounds.
func (n *Normalizer) Precipitation(source string, value float64, tag Unit) float64 {
	mm := value
	if n.Resolve(source, "precipitation", tag) == UnitInches {
		mm = value * 25.4
	}
	return RoundPrecip(mm)
}

// Probability maps an optional raw percentage onto the probability sentinel
// type: nil (provider omitted the field) becomes "n/a", never zero.
func (n *Normalizer) Probability(raw *float64) forecast.Probability {
	if raw == nil {
		return forecast.UnknownProbability()
	}
	v := *raw
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return forecast.KnownProbability(v)
}

// RoundPrecip applies the precipitation rounding policy on canonical mm:
// trace amounts under 0.1 collapse to zero, everything else rounds to one
// decimal place.
func RoundPrecip(mm float64) float64 {
	if mm < 0.1 {
		return 0.0
	}
	return math.Round(mm*10) / 10
}
