package titration

import (
	"errors"
	"fmt"
	"math"

	"github.com/g960059/ehrsim/internal/model"
	"github.com/g960059/ehrsim/internal/vitals"
)

var (
	ErrUnknownMedication = errors.New("unknown medication")
	ErrInvalidDose       = errors.New("dose must be a finite number")
	ErrDoseOutOfRange    = errors.New("dose out of range")
)

// Tracker holds the live dose of every scenario medication in one session.
// It is not safe for concurrent use; the owning session serializes access.
type Tracker struct {
	doses map[string]model.MedicationDose
}

// New seeds a tracker from scenario medications. An initial dose outside
// [min, max] is pulled to the nearest bound; later writes are never clamped.
func New(meds []model.Medication) *Tracker {
	t := &Tracker{doses: make(map[string]model.MedicationDose, len(meds))}
	for _, med := range meds {
		lo, hi := med.Min, med.Max
		if hi < lo {
			lo, hi = hi, lo
		}
		t.doses[med.ID] = model.MedicationDose{
			Dose:  math.Min(math.Max(med.InitialDose, lo), hi),
			Min:   lo,
			Max:   hi,
			Step:  med.Step,
			Unit:  med.Unit,
			Class: vitals.ClassName(med.Name),
		}
	}
	return t
}

// SetDose validates and applies a new dose. On any error the stored dose is
// left as it was.
func (t *Tracker) SetDose(medicationID string, dose float64) (float64, error) {
	cur, ok := t.doses[medicationID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMedication, medicationID)
	}
	if math.IsNaN(dose) || math.IsInf(dose, 0) {
		return cur.Dose, ErrInvalidDose
	}
	if dose < cur.Min || dose > cur.Max {
		return cur.Dose, fmt.Errorf("%w: %s must be within [%g, %g] %s", ErrDoseOutOfRange, medicationID, cur.Min, cur.Max, cur.Unit)
	}
	cur.Dose = dose
	t.doses[medicationID] = cur
	return dose, nil
}

func (t *Tracker) dose(medicationID string) (model.MedicationDose, bool) {
	d, ok := t.doses[medicationID]
	return d, ok
}

// Doses returns a copy of the current dose map.
func (t *Tracker) Doses() map[string]model.MedicationDose {
	out := make(map[string]model.MedicationDose, len(t.doses))
	for id, d := range t.doses {
		out[id] = d
	}
	return out
}
