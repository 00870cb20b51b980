package scenario

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/g960059/ehrsim/internal/model"
	"github.com/g960059/ehrsim/internal/vitals"
)

// Document is the portable file form of a scenario: its name plus the
// definition fields at the top level.
type Document struct {
	Name        string             `json:"name" yaml:"name" toml:"name"`
	Patient     model.Patient      `json:"patient" yaml:"patient" toml:"patient"`
	Vitals      model.VitalsBlock  `json:"vitals" yaml:"vitals" toml:"vitals"`
	Medications []model.Medication `json:"medications,omitempty" yaml:"medications,omitempty" toml:"medications,omitempty"`
	Target      *model.TargetSpec  `json:"target,omitempty" yaml:"target,omitempty" toml:"target,omitempty"`
}

func FromScenario(sc model.Scenario) Document {
	return Document{
		Name:        sc.Name,
		Patient:     sc.Definition.Patient,
		Vitals:      sc.Definition.Vitals,
		Medications: sc.Definition.Medications,
		Target:      sc.Definition.Target,
	}
}

func (d Document) Definition() model.ScenarioDefinition {
	return model.ScenarioDefinition{
		Patient:     d.Patient,
		Vitals:      d.Vitals,
		Medications: d.Medications,
		Target:      d.Target,
	}
}

// Validate reports every problem found in d, joined into one error.
func (d Document) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	errs = append(errs, ValidateDefinition(d.Definition())...)
	return errors.Join(errs...)
}

// ValidateDefinition checks baseline vitals, medication bounds and the
// target spec.
func ValidateDefinition(def model.ScenarioDefinition) []error {
	var errs []error
	current := def.Vitals.Current
	celsius := current.Celsius()
	for _, metric := range model.ModeledMetrics {
		v, ok := current.Value(metric)
		if !ok {
			continue
		}
		lo, hi, _ := vitals.Limits(metric, celsius)
		if !finite(v) || v < lo || v > hi {
			errs = append(errs, fmt.Errorf("vitals.current: %s %g outside [%g, %g]", metric, v, lo, hi))
		}
	}
	seen := map[string]bool{}
	for i, med := range def.Medications {
		label := fmt.Sprintf("medications[%d]", i)
		if strings.TrimSpace(med.ID) == "" {
			errs = append(errs, fmt.Errorf("%s: id is required", label))
		} else if seen[med.ID] {
			errs = append(errs, fmt.Errorf("%s: duplicate id %q", label, med.ID))
		}
		seen[med.ID] = true
		if !finite(med.Min, med.Max, med.Step, med.InitialDose) {
			errs = append(errs, fmt.Errorf("%s: bounds must be finite numbers", label))
			continue
		}
		if med.Min > med.Max {
			errs = append(errs, fmt.Errorf("%s: min %g exceeds max %g", label, med.Min, med.Max))
		}
		if med.Step < 0 {
			errs = append(errs, fmt.Errorf("%s: step must not be negative", label))
		}
		if med.InitialDose < med.Min || med.InitialDose > med.Max {
			errs = append(errs, fmt.Errorf("%s: initialDose %g outside [%g, %g]", label, med.InitialDose, med.Min, med.Max))
		}
		for key := range med.Effects {
			if _, err := model.ParseMetric(key); err != nil {
				errs = append(errs, fmt.Errorf("%s: effects: %w", label, err))
			}
		}
	}
	if t := def.Target; t != nil {
		if _, err := model.ParseMetric(t.Metric); err != nil {
			errs = append(errs, fmt.Errorf("target: %w", err))
		}
		if !finite(t.Range.Min, t.Range.Max) || t.Range.Min > t.Range.Max {
			errs = append(errs, fmt.Errorf("target: invalid range [%g, %g]", t.Range.Min, t.Range.Max))
		}
		if t.HoldTicksRequired < 1 {
			errs = append(errs, errors.New("target: holdTicksRequired must be at least 1"))
		}
	}
	return errs
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
