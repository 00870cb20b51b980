package vitals

import (
	"strings"

	"github.com/g960059/ehrsim/internal/model"
)

// drugClass maps name fragments to the equilibrium shift a medication
// produces across its full dose range. Temperature shifts are in °F.
type drugClass struct {
	name      string
	fragments []string
	shift     map[model.Metric]float64
}

// First matching class wins, so more specific fragments come first.
var drugClasses = []drugClass{
	{
		name:      "alpha-beta blocker",
		fragments: []string{"labetalol", "carvedilol"},
		shift: map[model.Metric]float64{
			model.MetricSystolic:  -30,
			model.MetricDiastolic: -15,
			model.MetricHeartRate: -15,
		},
	},
	{
		name:      "beta blocker",
		fragments: []string{"olol"},
		shift: map[model.Metric]float64{
			model.MetricSystolic:  -20,
			model.MetricDiastolic: -10,
			model.MetricHeartRate: -25,
		},
	},
	{
		name:      "vasopressor",
		fragments: []string{"norepinephrine", "epinephrine", "phenylephrine", "dopamine", "vasopressin", "levophed"},
		shift: map[model.Metric]float64{
			model.MetricSystolic:  35,
			model.MetricDiastolic: 20,
			model.MetricHeartRate: 15,
		},
	},
	{
		name:      "antihypertensive",
		fragments: []string{"nitroglycerin", "nitroprusside", "nicardipine", "clevidipine", "hydralazine", "dipine", "pril", "sartan", "clonidine"},
		shift: map[model.Metric]float64{
			model.MetricSystolic:  -30,
			model.MetricDiastolic: -15,
			model.MetricHeartRate: 5,
		},
	},
	{
		name:      "loop diuretic",
		fragments: []string{"furosemide", "lasix", "bumetanide"},
		shift: map[model.Metric]float64{
			model.MetricSystolic:  -10,
			model.MetricDiastolic: -5,
		},
	},
	{
		name:      "insulin",
		fragments: []string{"insulin"},
		shift: map[model.Metric]float64{
			model.MetricBloodGlucose: -150,
		},
	},
	{
		name:      "glucose",
		fragments: []string{"dextrose", "d50", "glucagon", "glucose"},
		shift: map[model.Metric]float64{
			model.MetricBloodGlucose: 120,
		},
	},
	{
		name:      "opioid",
		fragments: []string{"morphine", "fentanyl", "hydromorphone", "oxycodone", "dilaudid"},
		shift: map[model.Metric]float64{
			model.MetricPainLevel:       -6,
			model.MetricRespiratoryRate: -6,
			model.MetricHeartRate:       -5,
		},
	},
	{
		name:      "analgesic antipyretic",
		fragments: []string{"acetaminophen", "paracetamol", "tylenol", "ibuprofen", "ketorolac"},
		shift: map[model.Metric]float64{
			model.MetricPainLevel:   -3,
			model.MetricTemperature: -2,
		},
	},
	{
		name:      "bronchodilator",
		fragments: []string{"albuterol", "salbutamol"},
		shift: map[model.Metric]float64{
			model.MetricOxygenSaturation: 4,
			model.MetricRespiratoryRate:  -4,
			model.MetricHeartRate:        12,
		},
	},
	{
		name:      "oxygen",
		fragments: []string{"oxygen", "o2"},
		shift: map[model.Metric]float64{
			model.MetricOxygenSaturation: 8,
			model.MetricRespiratoryRate:  -3,
		},
	},
}

// resolveEffects returns the per-metric shift for med. Explicit effects on
// the medication take precedence over the built-in drug classes; effect keys
// that do not name a modeled metric are dropped.
func resolveEffects(med model.Medication) map[model.Metric]float64 {
	if len(med.Effects) > 0 {
		out := make(map[model.Metric]float64, len(med.Effects))
		for key, v := range med.Effects {
			metric, err := model.ParseMetric(key)
			if err != nil || metric == model.MetricMeanArterialPressure {
				continue
			}
			out[metric] += v
		}
		return out
	}
	if class, ok := classOf(med.Name); ok {
		return class.shift
	}
	return nil
}

// classOf reports the built-in drug class a medication name falls under.
func classOf(name string) (drugClass, bool) {
	lower := strings.ToLower(name)
	for _, class := range drugClasses {
		for _, frag := range class.fragments {
			if strings.Contains(lower, frag) {
				return class, true
			}
		}
	}
	return drugClass{}, false
}

// ClassName returns the built-in drug class label for name, or "".
func ClassName(name string) string {
	class, ok := classOf(name)
	if !ok {
		return ""
	}
	return class.name
}
