package target

import (
	"github.com/g960059/ehrsim/internal/model"
)

// Status is the outcome of one target evaluation.
type Status struct {
	Configured        bool
	Met               bool
	ConsecutiveTicks  int
	HoldTicksRequired int
	Description       string
	Metric            model.Metric
	Value             *float64
}

// Reached reports whether the target has been held long enough to finish.
func (s Status) Reached() bool {
	return s.Configured && s.ConsecutiveTicks >= s.HoldTicksRequired
}

// Display returns the consecutive count capped at HoldTicksRequired.
func (s Status) Display() int {
	if s.ConsecutiveTicks > s.HoldTicksRequired {
		return s.HoldTicksRequired
	}
	return s.ConsecutiveTicks
}

// Initial returns the status before any tick has been evaluated.
func Initial(spec *model.TargetSpec) Status {
	if spec == nil {
		return Status{}
	}
	metric, _ := model.ParseMetric(spec.Metric)
	return Status{
		Configured:        true,
		HoldTicksRequired: holdTicks(spec),
		Description:       spec.Description,
		Metric:            metric,
	}
}

// Evaluate checks v against spec. A met reading extends the previous streak
// by one; anything else resets it. A reading that is missing or a metric
// that cannot be resolved counts as not met.
func Evaluate(v model.Vitals, spec *model.TargetSpec, prev int) Status {
	st := Initial(spec)
	if !st.Configured {
		return st
	}
	if st.Metric == "" {
		return st
	}
	val, ok := v.Value(st.Metric)
	if !ok {
		return st
	}
	st.Value = model.Float(val)
	if val >= spec.Range.Min && val <= spec.Range.Max {
		st.Met = true
		st.ConsecutiveTicks = prev + 1
	}
	return st
}

func holdTicks(spec *model.TargetSpec) int {
	if spec.HoldTicksRequired < 1 {
		return 1
	}
	return spec.HoldTicksRequired
}
