// Package vitals holds the shared vocabulary of vital-sign metrics: the
// canonical names, the unit/range table used by the normalizer (§4.2), and
// the clinical reference ranges used by the scorer's cold-start fallback
// (§4.4).
package vitals

import "strings"

// Canonical metric names.
const (
	HeartRate         = "heart_rate"
	OxygenSaturation  = "oxygen_saturation"
	Temperature       = "temperature"
	SystolicPressure  = "systolic_pressure"
	DiastolicPressure = "diastolic_pressure"
	BloodPressure     = "blood_pressure"
	RespiratoryRate   = "respiratory_rate"
)

// alias maps a lower-cased raw metric name to its canonical form. Unknown
// names are not present here; callers fall back to the lower-cased input.
var alias = map[string]string{
	"hr":                HeartRate,
	"heartrate":         HeartRate,
	"heart_rate":        HeartRate,
	"pulse":             HeartRate,
	"spo2":              OxygenSaturation,
	"o2sat":             OxygenSaturation,
	"o2":                OxygenSaturation,
	"oxygen_saturation": OxygenSaturation,
	"temp":              Temperature,
	"temperature":       Temperature,
	"body_temp":         Temperature,
	"systolic":          SystolicPressure,
	"diastolic":         DiastolicPressure,
	"bp":                BloodPressure,
	"blood_pressure":    BloodPressure,
	"rr":                RespiratoryRate,
	"respiration":       RespiratoryRate,
	"respiratory_rate":  RespiratoryRate,
}

// Canonicalize resolves a raw metric name (case-insensitively) to its
// canonical form. Unknown names pass through lower-cased, never dropped.
func Canonicalize(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if canon, ok := alias[lower]; ok {
		return canon
	}
	return lower
}

// Range describes the clamp bounds and default unit for a metric.
type Range struct {
	Min         float64
	Max         float64
	DefaultUnit string
}

// ClampRanges is the §4.2 range-clamping table. Metrics absent from this
// table (blood pressure components, respiratory rate, unknown metrics) are
// not clamped by the normalizer.
var ClampRanges = map[string]Range{
	HeartRate:        {Min: 20, Max: 240, DefaultUnit: "bpm"},
	OxygenSaturation: {Min: 50, Max: 100, DefaultUnit: "percent"},
	Temperature:      {Min: 30, Max: 45, DefaultUnit: "celsius"},
}

// Clamp restricts value to [r.Min, r.Max] and reports whether clamping
// changed the value.
func (r Range) Clamp(value float64) (clamped float64, changed bool) {
	switch {
	case value < r.Min:
		return r.Min, true
	case value > r.Max:
		return r.Max, true
	default:
		return value, false
	}
}

// ClinicalRange describes the healthy-adult reference band used only by the
// scorer's cold-start fallback (§4.4), distinct from ClampRanges.
type ClinicalRange struct {
	Min float64
	Max float64
}

// ClinicalRanges is the cold-start reference table.
var ClinicalRanges = map[string]ClinicalRange{
	HeartRate:        {Min: 60, Max: 100},
	OxygenSaturation: {Min: 95, Max: 100},
	Temperature:      {Min: 36.1, Max: 37.2},
}

// InClinicalRange reports whether value falls within the clinical range for
// vital, and whether a range is even defined for that vital.
func InClinicalRange(vital string, value float64) (inRange bool, defined bool) {
	r, ok := ClinicalRanges[vital]
	if !ok {
		return false, false
	}
	return value >= r.Min && value <= r.Max, true
}

// CoreVitals are the three vitals the overall risk score weighs (§4.4).
var CoreVitals = [...]string{HeartRate, OxygenSaturation, Temperature}

// CoreWeights are the §4.4 weighted-mean coefficients, indexed the same way
// as CoreVitals.
var CoreWeights = map[string]float64{
	HeartRate:        0.35,
	OxygenSaturation: 0.35,
	Temperature:      0.30,
}

// Reading is the shared vital-sign reading shape (§3).
type Reading struct {
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Timestamp string  `json:"timestamp"`
}

// BloodPressureReading is the two-component blood-pressure shape (§3).
type BloodPressureReading struct {
	Systolic  *float64 `json:"systolic,omitempty"`
	Diastolic *float64 `json:"diastolic,omitempty"`
	Unit      string   `json:"unit"`
	Timestamp string   `json:"timestamp"`
}
