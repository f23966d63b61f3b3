package units

import (
	"math"
	"testing"
)

const tolerance = 1e-9

// TestPrecipitationInchesToMM verifies the inches→mm path for tagged values,
// including the rounding policy applied at normalization time.
func TestPrecipitationInchesToMM(t *testing.T) {
	n := NewNormalizer()

	cases := []struct {
		in   float64
		want float64
	}{
		{0.256, 6.5}, // 0.256 * 25.4 = 6.5024, rounded to one decimal
		{1.0, 25.4},
		{0.003, 0.0}, // 0.0762mm, under the trace threshold
		{0.01, 0.3},  // 0.254mm
	}

	for _, tc := range cases {
		got := n.Precipitation("weatherapi", tc.in, UnitInches)
		if math.Abs(got-tc.want) > tolerance {
			t.Errorf("Precipitation(%v in) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// TestPrecipitationMMIdempotent verifies that values already in mm pass
// through unchanged, so re-normalizing a normalized value is a no-op.
func TestPrecipitationMMIdempotent(t *testing.T) {
	n := NewNormalizer()

	for _, v := range []float64{0.0, 0.2, 1.5, 6.5, 25.4} {
		got := n.Precipitation("weatherapi", v, UnitMillimeters)
		if math.Abs(got-v) > tolerance {
			t.Errorf("Precipitation(%v mm) = %v, want %v", v, got, v)
		}
		again := n.Precipitation("weatherapi", got, UnitMillimeters)
		if math.Abs(again-got) > tolerance {
			t.Errorf("re-normalizing %v changed it to %v", got, again)
		}
	}
}

// TestTagOverridesDefault: weatherapi's documented default is mm, but an
// explicit in-payload tag must win.
func TestTagOverridesDefault(t *testing.T) {
	n := NewNormalizer()

	tagged := n.Precipitation("weatherapi", 1.0, UnitInches)
	if math.Abs(tagged-25.4) > tolerance {
		t.Errorf("tagged inches = %v, want 25.4", tagged)
	}

	untagged := n.Precipitation("weatherapi", 1.0, UnitNone)
	if math.Abs(untagged-1.0) > tolerance {
		t.Errorf("untagged value = %v, want documented default (mm) 1.0", untagged)
	}
}

// TestUnrecognizedTagTreatedAsInches: an unknown precipitation tag is the
// less trusted unit and must be converted, not silently passed through.
func TestUnrecognizedTagTreatedAsInches(t *testing.T) {
	n := NewNormalizer()

	got := n.Precipitation("weatherapi", 1.0, Unit("bogus"))
	if math.Abs(got-25.4) > tolerance {
		t.Errorf("unrecognized tag = %v, want inches conversion 25.4", got)
	}
}

func TestTemperatureConversion(t *testing.T) {
	n := NewNormalizer()

	cases := []struct {
		c    float64
		want float64
	}{
		{0, 32},
		{100, 212},
		{-40, -40},
		{21.1, 69.98},
	}
	for _, tc := range cases {
		got := n.Temperature("openmeteo", tc.c, UnitNone)
		if math.Abs(got-tc.want) > 1e-6 {
			t.Errorf("Temperature(%v°C) = %v, want %v", tc.c, got, tc.want)
		}
	}

	// Already-Fahrenheit values pass through when tagged.
	if got := n.Temperature("openmeteo", 72, UnitFahrenheit); got != 72 {
		t.Errorf("Temperature(72°F tagged) = %v, want 72", got)
	}
}

func TestWindSpeedConversion(t *testing.T) {
	n := NewNormalizer()

	// openmeteo documented default is km/h.
	if got := n.WindSpeed("openmeteo", 100, UnitNone); math.Abs(got-62.1371) > 1e-4 {
		t.Errorf("WindSpeed(100 km/h) = %v, want 62.1371", got)
	}
	// openweathermap documented default is m/s.
	if got := n.WindSpeed("openweathermap", 10, UnitNone); math.Abs(got-22.369356) > 1e-4 {
		t.Errorf("WindSpeed(10 m/s) = %v, want 22.3694", got)
	}
}

func TestRoundPrecipPolicy(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.0, 0.0},
		{0.09, 0.0},
		{0.1, 0.1},
		{0.94, 0.9},
		{0.96, 1.0},
		{1.04, 1.0},
		{6.5024, 6.5},
	}
	for _, tc := range cases {
		if got := RoundPrecip(tc.in); math.Abs(got-tc.want) > tolerance {
			t.Errorf("RoundPrecip(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// TestProbabilitySentinel verifies that an omitted probability becomes the
// "n/a" sentinel, distinct from an explicit zero.
func TestProbabilitySentinel(t *testing.T) {
	n := NewNormalizer()

	if p := n.Probability(nil); p.Known {
		t.Error("nil probability should be unknown")
	}

	zero := 0.0
	if p := n.Probability(&zero); !p.Known || p.Value != 0 {
		t.Errorf("explicit zero should be known zero, got %+v", p)
	}

	over := 140.0
	if p := n.Probability(&over); p.Value != 100 {
		t.Errorf("out-of-range probability should clamp to 100, got %v", p.Value)
	}
}

func TestFieldStates(t *testing.T) {
	if !Valid(1).Usable() || !Defaulted(0).Usable() {
		t.Error("valid and defaulted fields must be usable")
	}
	if Malformed().Usable() {
		t.Error("malformed fields must not be usable")
	}
}
