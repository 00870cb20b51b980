package vitals

import (
	"reflect"
	"testing"

	"github.com/g960059/ehrsim/internal/model"
)

func hypertensiveBaseline() model.Vitals {
	return model.Vitals{
		BloodPressure:    &model.BloodPressure{Systolic: model.Float(182), Diastolic: model.Float(98), Unit: "mmHg"},
		HeartRate:        model.Float(96),
		RespiratoryRate:  model.Float(18),
		Temperature:      model.Float(98.9),
		TemperatureUnit:  "F",
		OxygenSaturation: model.Float(96),
		PainLevel:        model.Float(4),
	}
}

func labetalol() model.Medication {
	return model.Medication{ID: "labetalol", Name: "Labetalol", Min: 0, Max: 40, Step: 5, Unit: "mg", InitialDose: 0}
}

func TestAdvanceIsDeterministicForSeed(t *testing.T) {
	meds := []model.Medication{labetalol()}
	doses := map[string]model.MedicationDose{"labetalol": {Dose: 20, Min: 0, Max: 40}}

	run := func() []model.Vitals {
		m := NewModel(hypertensiveBaseline(), meds, 42, 1)
		cur := hypertensiveBaseline()
		var out []model.Vitals
		for tick := int64(1); tick <= 20; tick++ {
			cur = m.Advance(cur, doses, tick)
			out = append(out, cur)
		}
		return out
	}
	a, b := run(), run()
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed produced different sequences")
	}

	other := NewModel(hypertensiveBaseline(), meds, 7, 1)
	c := other.Advance(hypertensiveBaseline(), doses, 1)
	if reflect.DeepEqual(a[0], c) {
		t.Fatalf("different seeds should diverge on first tick")
	}
}

func TestAdvanceKeepsMissingFieldsAbsent(t *testing.T) {
	base := model.Vitals{HeartRate: model.Float(80)}
	m := NewModel(base, nil, 1, 1)
	next := m.Advance(base, nil, 1)
	if next.BloodPressure != nil || next.BloodGlucose != nil || next.Temperature != nil {
		t.Fatalf("absent fields were fabricated: %+v", next)
	}
	if next.HeartRate == nil {
		t.Fatalf("heart rate dropped")
	}
}

func TestAdvanceWithoutNoiseHoldsBaseline(t *testing.T) {
	base := hypertensiveBaseline()
	m := NewModel(base, nil, 0, 0)
	cur := base
	for tick := int64(1); tick <= 10; tick++ {
		cur = m.Advance(cur, nil, tick)
	}
	if !reflect.DeepEqual(cur, base) {
		t.Fatalf("expected steady state at baseline, got %+v", cur)
	}
}

func TestAdvanceDoesNotAliasInput(t *testing.T) {
	base := hypertensiveBaseline()
	cur := base.Clone()
	m := NewModel(base, []model.Medication{labetalol()}, 3, 1)
	_ = m.Advance(cur, map[string]model.MedicationDose{"labetalol": {Dose: 40}}, 1)
	if !reflect.DeepEqual(cur, base) {
		t.Fatalf("input vector mutated")
	}
}

func TestAntihypertensiveLowersPressureTowardEquilibrium(t *testing.T) {
	base := hypertensiveBaseline()
	m := NewModel(base, []model.Medication{labetalol()}, 0, 0)
	doses := map[string]model.MedicationDose{"labetalol": {Dose: 40, Min: 0, Max: 40}}

	cur := base
	prev := *base.BloodPressure.Systolic
	for tick := int64(1); tick <= 30; tick++ {
		cur = m.Advance(cur, doses, tick)
		sys := *cur.BloodPressure.Systolic
		if sys > prev {
			t.Fatalf("tick %d: systolic rose from %.1f to %.1f", tick, prev, sys)
		}
		prev = sys
	}
	// full range shift for alpha-beta blockers is -30 mmHg
	if got := *cur.BloodPressure.Systolic; got < 151.5 || got > 153 {
		t.Fatalf("expected systolic near 152, got %.1f", got)
	}
	if got := *cur.HeartRate; got >= 96 {
		t.Fatalf("expected heart rate to fall, got %.1f", got)
	}
}

func TestUnknownMedicationIsIgnored(t *testing.T) {
	base := hypertensiveBaseline()
	m := NewModel(base, []model.Medication{{ID: "saline", Name: "Normal Saline", Min: 0, Max: 1000}}, 0, 0)
	next := m.Advance(base, map[string]model.MedicationDose{
		"saline":  {Dose: 1000},
		"missing": {Dose: 5},
	}, 1)
	if !reflect.DeepEqual(next, base) {
		t.Fatalf("unrecognized medications should not move vitals")
	}
}

func TestExplicitEffectsOverrideClass(t *testing.T) {
	base := model.Vitals{BloodGlucose: model.Float(50)}
	med := model.Medication{
		ID: "d50", Name: "Dextrose 50%", Min: 0, Max: 50, InitialDose: 0,
		Effects: map[string]float64{"glucose": 200, "bogus": 10},
	}
	m := NewModel(base, []model.Medication{med}, 0, 0)
	next := m.Advance(base, map[string]model.MedicationDose{"d50": {Dose: 50}}, 1)
	// 50 + 0.25 * 200
	if got := *next.BloodGlucose; got != 100 {
		t.Fatalf("expected glucose 100, got %.1f", got)
	}
}

func TestAdvanceClampsAndKeepsPulsePressure(t *testing.T) {
	base := model.Vitals{
		BloodPressure:    &model.BloodPressure{Systolic: model.Float(80), Diastolic: model.Float(78)},
		OxygenSaturation: model.Float(99.9),
	}
	oxy := model.Medication{ID: "o2", Name: "Oxygen", Min: 0, Max: 15, InitialDose: 0}
	m := NewModel(base, []model.Medication{oxy}, 0, 0)
	next := m.Advance(base, map[string]model.MedicationDose{"o2": {Dose: 15}}, 1)
	if got := *next.OxygenSaturation; got != 100 {
		t.Fatalf("expected SpO2 clamped to 100, got %.1f", got)
	}
	if sys, dia := *next.BloodPressure.Systolic, *next.BloodPressure.Diastolic; dia > sys-MinPulsePressure {
		t.Fatalf("diastolic %.1f too close to systolic %.1f", dia, sys)
	}
}

func TestCelsiusTemperatureShiftIsConverted(t *testing.T) {
	base := model.Vitals{Temperature: model.Float(39), TemperatureUnit: "C"}
	apap := model.Medication{ID: "apap", Name: "Acetaminophen", Min: 0, Max: 1000, InitialDose: 0}
	m := NewModel(base, []model.Medication{apap}, 0, 0)
	cur := base
	for tick := int64(1); tick <= 40; tick++ {
		cur = m.Advance(cur, map[string]model.MedicationDose{"apap": {Dose: 1000}}, tick)
	}
	// -2 °F is about -1.1 °C
	if got := *cur.Temperature; got < 37.8 || got > 38.1 {
		t.Fatalf("expected temperature near 37.9 C, got %.1f", got)
	}
}

func TestClassName(t *testing.T) {
	cases := map[string]string{
		"Metoprolol tartrate": "beta blocker",
		"Labetalol":           "alpha-beta blocker",
		"Insulin Regular":     "insulin",
		"Norepinephrine drip": "vasopressor",
		"Dextrose 50% (D50W)": "glucose",
		"Mystery Elixir":      "",
	}
	for name, want := range cases {
		if got := ClassName(name); got != want {
			t.Fatalf("ClassName(%q)=%q want %q", name, got, want)
		}
	}
}

func TestExtremeBaselineInsideLimitsIsHeld(t *testing.T) {
	base := model.Vitals{
		HeartRate:        model.Float(215),
		OxygenSaturation: model.Float(60),
		RespiratoryRate:  model.Float(50),
		Temperature:      model.Float(42.5),
		TemperatureUnit:  "C",
	}
	m := NewModel(base, nil, 1, 0)
	cur := base
	for tick := int64(1); tick <= 5; tick++ {
		cur = m.Advance(cur, nil, tick)
	}
	if !reflect.DeepEqual(cur, base) {
		t.Fatalf("in-range baseline drifted: %+v", cur)
	}
}

func TestAdvanceClampsToPhysiologicalLimits(t *testing.T) {
	cur := model.Vitals{
		BloodPressure:    &model.BloodPressure{Systolic: model.Float(300), Diastolic: model.Float(10)},
		HeartRate:        model.Float(5),
		RespiratoryRate:  model.Float(90),
		OxygenSaturation: model.Float(20),
		BloodGlucose:     model.Float(900),
	}
	m := NewModel(cur, nil, 0, 0)
	next := m.Advance(cur, nil, 1)
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"systolic", *next.BloodPressure.Systolic, 250},
		{"diastolic", *next.BloodPressure.Diastolic, 30},
		{"heart rate", *next.HeartRate, 20},
		{"respiratory rate", *next.RespiratoryRate, 60},
		{"spo2", *next.OxygenSaturation, 50},
		{"glucose", *next.BloodGlucose, 600},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s=%.1f want %.1f", c.name, c.got, c.want)
		}
	}

	lo, hi, ok := Limits(model.MetricTemperature, true)
	if !ok || lo != 29 || hi != 43 {
		t.Fatalf("celsius limits=[%g, %g] ok=%v", lo, hi, ok)
	}
	if _, _, ok := Limits(model.MetricMeanArterialPressure, false); ok {
		t.Fatalf("derived metric should have no limits")
	}
}
