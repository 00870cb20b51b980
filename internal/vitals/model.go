package vitals

import (
	"math"
	"math/rand/v2"

	"github.com/g960059/ehrsim/internal/model"
)

const (
	// RelaxRate is the fraction of the gap to equilibrium closed per tick.
	RelaxRate = 0.25
	// MinPulsePressure keeps diastolic below systolic after drift.
	MinPulsePressure = 10.0
)

type bounds struct {
	min, max float64
}

var limits = map[model.Metric]bounds{
	model.MetricSystolic:         {50, 250},
	model.MetricDiastolic:        {30, 150},
	model.MetricHeartRate:        {20, 220},
	model.MetricRespiratoryRate:  {4, 60},
	model.MetricTemperature:      {85, 110},
	model.MetricOxygenSaturation: {50, 100},
	model.MetricPainLevel:        {0, 10},
	model.MetricBloodGlucose:     {20, 600},
}

var celsiusTemperature = bounds{29, 43}

// noiseScale is the per-tick jitter amplitude at noise factor 1.
var noiseScale = map[model.Metric]float64{
	model.MetricSystolic:         1.5,
	model.MetricDiastolic:        1.0,
	model.MetricHeartRate:        1.5,
	model.MetricRespiratoryRate:  0.5,
	model.MetricTemperature:      0.1,
	model.MetricOxygenSaturation: 0.3,
	model.MetricPainLevel:        0.2,
	model.MetricBloodGlucose:     2.0,
}

// Model advances a vitals vector one tick at a time. It holds only immutable
// inputs, so Advance is a pure function of its arguments.
type Model struct {
	baseline model.Vitals
	effects  map[string]medEffect
	order    []string
	seed     uint64
	noise    float64
}

type medEffect struct {
	min, max, initial float64
	shift             map[model.Metric]float64
}

// NewModel builds a model around the scenario's baseline vitals. noise scales
// the seeded jitter; zero makes evolution fully deterministic without a seed.
func NewModel(baseline model.Vitals, meds []model.Medication, seed uint64, noise float64) *Model {
	m := &Model{
		baseline: baseline.Clone(),
		effects:  make(map[string]medEffect, len(meds)),
		seed:     seed,
		noise:    math.Max(noise, 0),
	}
	for _, med := range meds {
		shift := resolveEffects(med)
		if len(shift) == 0 {
			continue
		}
		if _, dup := m.effects[med.ID]; !dup {
			m.order = append(m.order, med.ID)
		}
		m.effects[med.ID] = medEffect{min: med.Min, max: med.Max, initial: med.InitialDose, shift: shift}
	}
	return m
}

// Advance returns the vitals for tick given the current vector and doses.
// Fields absent from current stay absent. Doses for medications the model
// does not know are ignored.
func (m *Model) Advance(current model.Vitals, doses map[string]model.MedicationDose, tick int64) model.Vitals {
	next := current.Clone()
	rng := rand.New(rand.NewPCG(m.seed, uint64(tick)))
	celsius := current.Celsius()

	for _, metric := range model.ModeledMetrics {
		// Draw unconditionally so the sequence does not depend on which fields exist.
		jitter := rng.Float64()*2 - 1
		cur, ok := current.Value(metric)
		if !ok {
			continue
		}
		base, ok := m.baseline.Value(metric)
		if !ok {
			base = cur
		}
		eq := base + m.medicationShift(metric, doses, celsius)
		scale := noiseScale[metric]
		if metric == model.MetricTemperature && celsius {
			scale *= 5.0 / 9.0
		}
		val := cur + RelaxRate*(eq-cur) + m.noise*scale*jitter
		next.Set(metric, round1(clamp(val, limitFor(metric, celsius))))
	}

	if bp := next.BloodPressure; bp != nil && bp.Systolic != nil && bp.Diastolic != nil {
		if *bp.Diastolic > *bp.Systolic-MinPulsePressure {
			*bp.Diastolic = round1(clamp(*bp.Systolic-MinPulsePressure, limits[model.MetricDiastolic]))
		}
	}
	return next
}

func (m *Model) medicationShift(metric model.Metric, doses map[string]model.MedicationDose, celsius bool) float64 {
	total := 0.0
	// Scenario order keeps the float sum stable across calls.
	for _, id := range m.order {
		d, ok := doses[id]
		if !ok {
			continue
		}
		eff := m.effects[id]
		coeff, ok := eff.shift[metric]
		if !ok || eff.max <= eff.min {
			continue
		}
		total += coeff * (d.Dose - eff.initial) / (eff.max - eff.min)
	}
	if metric == model.MetricTemperature && celsius {
		total *= 5.0 / 9.0
	}
	return total
}

// Limits returns the physiological range Advance clamps metric into. ok is
// false for metrics the model does not evolve.
func Limits(metric model.Metric, celsius bool) (lo, hi float64, ok bool) {
	if _, known := limits[metric]; !known {
		return 0, 0, false
	}
	b := limitFor(metric, celsius)
	return b.min, b.max, true
}

func limitFor(metric model.Metric, celsius bool) bounds {
	if metric == model.MetricTemperature && celsius {
		return celsiusTemperature
	}
	return limits[metric]
}

func clamp(v float64, b bounds) float64 {
	if math.IsNaN(v) {
		return b.min
	}
	return math.Min(math.Max(v, b.min), b.max)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
