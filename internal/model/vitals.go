package model

import (
	"fmt"
	"strings"
)

type BloodPressure struct {
	Systolic  *float64 `json:"systolic,omitempty" yaml:"systolic,omitempty" toml:"systolic,omitempty"`
	Diastolic *float64 `json:"diastolic,omitempty" yaml:"diastolic,omitempty" toml:"diastolic,omitempty"`
	Unit      string   `json:"unit,omitempty" yaml:"unit,omitempty" toml:"unit,omitempty"`
}

// Vitals is a patient vital-sign vector. Every numeric field is optional; a
// nil field means the scenario does not model that sign.
type Vitals struct {
	BloodPressure    *BloodPressure `json:"bloodPressure,omitempty" yaml:"bloodPressure,omitempty" toml:"bloodPressure,omitempty"`
	HeartRate        *float64       `json:"heartRate,omitempty" yaml:"heartRate,omitempty" toml:"heartRate,omitempty"`
	RespiratoryRate  *float64       `json:"respiratoryRate,omitempty" yaml:"respiratoryRate,omitempty" toml:"respiratoryRate,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	TemperatureUnit  string         `json:"temperatureUnit,omitempty" yaml:"temperatureUnit,omitempty" toml:"temperatureUnit,omitempty"`
	OxygenSaturation *float64       `json:"oxygenSaturation,omitempty" yaml:"oxygenSaturation,omitempty" toml:"oxygenSaturation,omitempty"`
	PainLevel        *float64       `json:"painLevel,omitempty" yaml:"painLevel,omitempty" toml:"painLevel,omitempty"`
	BloodGlucose     *float64       `json:"bloodGlucose,omitempty" yaml:"bloodGlucose,omitempty" toml:"bloodGlucose,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Clone returns a deep copy so callers never alias session-owned pointers.
func (v Vitals) Clone() Vitals {
	out := Vitals{
		HeartRate:        cloneFloat(v.HeartRate),
		RespiratoryRate:  cloneFloat(v.RespiratoryRate),
		Temperature:      cloneFloat(v.Temperature),
		TemperatureUnit:  v.TemperatureUnit,
		OxygenSaturation: cloneFloat(v.OxygenSaturation),
		PainLevel:        cloneFloat(v.PainLevel),
		BloodGlucose:     cloneFloat(v.BloodGlucose),
	}
	if v.BloodPressure != nil {
		out.BloodPressure = &BloodPressure{
			Systolic:  cloneFloat(v.BloodPressure.Systolic),
			Diastolic: cloneFloat(v.BloodPressure.Diastolic),
			Unit:      v.BloodPressure.Unit,
		}
	}
	return out
}

// Celsius reports whether Temperature is recorded in degrees Celsius.
func (v Vitals) Celsius() bool {
	u := strings.ToUpper(strings.TrimSpace(v.TemperatureUnit))
	return u == "C" || u == "°C" || u == "CELSIUS"
}

type Metric string

const (
	MetricSystolic             Metric = "systolic"
	MetricDiastolic            Metric = "diastolic"
	MetricMeanArterialPressure Metric = "meanArterialPressure"
	MetricHeartRate            Metric = "heartRate"
	MetricRespiratoryRate      Metric = "respiratoryRate"
	MetricTemperature          Metric = "temperature"
	MetricOxygenSaturation     Metric = "oxygenSaturation"
	MetricPainLevel            Metric = "painLevel"
	MetricBloodGlucose         Metric = "bloodGlucose"
)

// ModeledMetrics lists the directly stored metrics in their fixed evolution
// order. Derived metrics such as mean arterial pressure are excluded.
var ModeledMetrics = []Metric{
	MetricSystolic,
	MetricDiastolic,
	MetricHeartRate,
	MetricRespiratoryRate,
	MetricTemperature,
	MetricOxygenSaturation,
	MetricPainLevel,
	MetricBloodGlucose,
}

var metricAliases = map[string]Metric{
	"systolic":                MetricSystolic,
	"sbp":                     MetricSystolic,
	"bloodpressure.systolic":  MetricSystolic,
	"diastolic":               MetricDiastolic,
	"dbp":                     MetricDiastolic,
	"bloodpressure.diastolic": MetricDiastolic,
	"meanarterialpressure":    MetricMeanArterialPressure,
	"map":                     MetricMeanArterialPressure,
	"heartrate":               MetricHeartRate,
	"hr":                      MetricHeartRate,
	"pulse":                   MetricHeartRate,
	"respiratoryrate":         MetricRespiratoryRate,
	"rr":                      MetricRespiratoryRate,
	"temperature":             MetricTemperature,
	"temp":                    MetricTemperature,
	"oxygensaturation":        MetricOxygenSaturation,
	"spo2":                    MetricOxygenSaturation,
	"o2sat":                   MetricOxygenSaturation,
	"painlevel":               MetricPainLevel,
	"pain":                    MetricPainLevel,
	"bloodglucose":            MetricBloodGlucose,
	"glucose":                 MetricBloodGlucose,
	"bg":                      MetricBloodGlucose,
}

// ParseMetric resolves a metric selector. Matching ignores case and the
// separators '_', '-' and ' '.
func ParseMetric(raw string) (Metric, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	if m, ok := metricAliases[key]; ok {
		return m, nil
	}
	return "", fmt.Errorf("unknown vital metric %q", raw)
}

// Value returns the reading for m, or false when the vector does not carry it.
func (v Vitals) Value(m Metric) (float64, bool) {
	var p *float64
	switch m {
	case MetricSystolic:
		if v.BloodPressure != nil {
			p = v.BloodPressure.Systolic
		}
	case MetricDiastolic:
		if v.BloodPressure != nil {
			p = v.BloodPressure.Diastolic
		}
	case MetricMeanArterialPressure:
		if v.BloodPressure == nil || v.BloodPressure.Systolic == nil || v.BloodPressure.Diastolic == nil {
			return 0, false
		}
		sys, dia := *v.BloodPressure.Systolic, *v.BloodPressure.Diastolic
		return (sys + 2*dia) / 3, true
	case MetricHeartRate:
		p = v.HeartRate
	case MetricRespiratoryRate:
		p = v.RespiratoryRate
	case MetricTemperature:
		p = v.Temperature
	case MetricOxygenSaturation:
		p = v.OxygenSaturation
	case MetricPainLevel:
		p = v.PainLevel
	case MetricBloodGlucose:
		p = v.BloodGlucose
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Set stores val for m when the field is already present. Absent fields and
// derived metrics are left untouched.
func (v *Vitals) Set(m Metric, val float64) {
	var p *float64
	switch m {
	case MetricSystolic:
		if v.BloodPressure != nil {
			p = v.BloodPressure.Systolic
		}
	case MetricDiastolic:
		if v.BloodPressure != nil {
			p = v.BloodPressure.Diastolic
		}
	case MetricHeartRate:
		p = v.HeartRate
	case MetricRespiratoryRate:
		p = v.RespiratoryRate
	case MetricTemperature:
		p = v.Temperature
	case MetricOxygenSaturation:
		p = v.OxygenSaturation
	case MetricPainLevel:
		p = v.PainLevel
	case MetricBloodGlucose:
		p = v.BloodGlucose
	}
	if p != nil {
		*p = val
	}
}
