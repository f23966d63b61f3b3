package forecast

import (
	"time"
)

// Property names a comparable observation field.
type Property string

const (
	PropTemperature Property = "temperature"
	PropFeelsLike   Property = "feelsLike"
	PropPrecipProb  Property = "precipProbability"
)

// AgreementLevel is the qualitative bucket for cross-source spread.
type AgreementLevel string

const (
	AgreementHigh   AgreementLevel = "high"
	AgreementMedium AgreementLevel = "medium"
	AgreementLow    AgreementLevel = "low"
)

// agreementThresholds is T per property: spread ≤ T is high, ≤ 2T medium,
// else low. Temperature thresholds are °F, probability is percentage points.
var agreementThresholds = map[Property]float64{
	PropTemperature: 5,
	PropFeelsLike:   5,
	PropPrecipProb:  20,
}

// AgreementResult summarizes how closely sources agree on one property at
// one time slot.
type AgreementResult struct {
	Property       Property       `json:"property"`
	Agrees         bool           `json:"agrees"`
	Difference     float64        `json:"difference"`
	AgreementLevel AgreementLevel `json:"agreementLevel"`
}

// PrecipBucket is the intensity classification for a canonical-mm amount.
type PrecipBucket string

const (
	BucketNone     PrecipBucket = "none"
	BucketDrizzle  PrecipBucket = "drizzle"
	BucketLight    PrecipBucket = "light"
	BucketModerate PrecipBucket = "moderate"
	BucketHeavy    PrecipBucket = "heavy"
)

// displayClassifications maps each bucket 1:1 onto the label the UI renders.
var displayClassifications = map[PrecipBucket]string{
	BucketNone:     "No precipitation",
	BucketDrizzle:  "Drizzle",
	BucketLight:    "Light precipitation",
	BucketModerate: "Moderate precipitation",
	BucketHeavy:    "Heavy precipitation",
}

// BucketForAmount classifies a canonical mm amount. Boundaries: none <0.1,
// drizzle [0.1,0.3], light (0.3,2], moderate (2,5], heavy >5.
func BucketForAmount(mm float64) PrecipBucket {
	switch {
	case mm < 0.1:
		return BucketNone
	case mm <= 0.3:
		return BucketDrizzle
	case mm <= 2:
		return BucketLight
	case mm <= 5:
		return BucketModerate
	default:
		return BucketHeavy
	}
}

// DisplayClassification returns the UI label for a bucket.
func DisplayClassification(b PrecipBucket) string {
	return displayClassifications[b]
}

// propertyValue extracts a comparable value from an observation, reporting
// whether it is valid for agreement purposes. The "n/a" probability sentinel
// is excluded, never treated as zero.
func propertyValue(obs *NormalizedObservation, prop Property) (float64, bool) {
	if obs == nil {
		return 0, false
	}
	switch prop {
	case PropTemperature:
		return obs.Temperature, true
	case PropFeelsLike:
		return obs.FeelsLike, true
	case PropPrecipProb:
		if !obs.Precipitation.Probability.Known {
			return 0, false
		}
		return obs.Precipitation.Probability.Value, true
	default:
		return 0, false
	}
}

// CompareAt computes agreement for one property at one hourly slot across
// all series. Errored/rate-limited sources contribute nothing; with fewer
// than two valid values the result defaults to full agreement.
func CompareAt(series []ForecastSeries, prop Property, slot int) AgreementResult {
	var values []float64
	for _, s := range series {
		if slot < 0 || slot >= len(s.Hourly) {
			continue
		}
		if v, valid := propertyValue(s.Hourly[slot], prop); valid {
			values = append(values, v)
		}
	}
	return compareValues(prop, values)
}

// CompareCurrent computes agreement for one property across the sources'
// current observations.
func CompareCurrent(series []ForecastSeries, prop Property) AgreementResult {
	var values []float64
	for _, s := range series {
		if v, valid := propertyValue(s.Current, prop); valid {
			values = append(values, v)
		}
	}
	return compareValues(prop, values)
}

func compareValues(prop Property, values []float64) AgreementResult {
	if len(values) < 2 {
		return AgreementResult{Property: prop, Agrees: true, Difference: 0, AgreementLevel: AgreementHigh}
	}

	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	diff := max - min
	t := agreementThresholds[prop]

	level := AgreementLow
	switch {
	case diff <= t:
		level = AgreementHigh
	case diff <= 2*t:
		level = AgreementMedium
	}

	return AgreementResult{
		Property:       prop,
		Agrees:         level == AgreementHigh,
		Difference:     diff,
		AgreementLevel: level,
	}
}

// dryDayThresholdMM is the per-hour amount below which an hour counts as dry.
const dryDayThresholdMM = 0.5

// IsDryDay reports whether the given UTC calendar day is dry: every source
// that has data for an hour of that day reports under the threshold. Hours
// with no data are skipped, not counted as zero; a single qualifying wet
// hour from any source flips the day.
func IsDryDay(series []ForecastSeries, day time.Time) bool {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	for _, s := range series {
		for _, obs := range s.Hourly {
			if obs == nil {
				continue
			}
			ts := obs.Time()
			if ts.Before(dayStart) || !ts.Before(dayEnd) {
				continue
			}
			if obs.Precipitation.Amount >= dryDayThresholdMM {
				return false
			}
		}
	}
	return true
}
