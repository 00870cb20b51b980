package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/g960059/ehrsim/internal/api"
	"github.com/g960059/ehrsim/internal/model"
)

func formatVitals(v model.Vitals) string {
	var parts []string
	if v.BloodPressure != nil && v.BloodPressure.Systolic != nil && v.BloodPressure.Diastolic != nil {
		parts = append(parts, fmt.Sprintf("BP %.0f/%.0f", *v.BloodPressure.Systolic, *v.BloodPressure.Diastolic))
	}
	add := func(label string, p *float64, format string) {
		if p != nil {
			parts = append(parts, label+" "+fmt.Sprintf(format, *p))
		}
	}
	add("HR", v.HeartRate, "%.0f")
	add("RR", v.RespiratoryRate, "%.0f")
	if v.Temperature != nil {
		unit := "F"
		if v.Celsius() {
			unit = "C"
		}
		parts = append(parts, fmt.Sprintf("T %.1f%s", *v.Temperature, unit))
	}
	add("SpO2", v.OxygenSaturation, "%.0f%%")
	add("Pain", v.PainLevel, "%.0f")
	add("BG", v.BloodGlucose, "%.0f")
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "  ")
}

func formatTarget(ts api.TargetStatus) string {
	if !ts.Configured {
		return "no target"
	}
	label := ts.Metric
	if ts.Description != "" {
		label = ts.Description
	}
	state := fmt.Sprintf("%d/%d", ts.ConsecutiveTicks, ts.HoldTicksRequired)
	if ts.Met {
		state += " met"
	}
	return label + " " + state
}

func writeSessionLine(w io.Writer, st api.SessionState) {
	_, _ = fmt.Fprintf(w, "%d\t%s\t%s\ttick %d\t%s\n",
		st.SessionID, st.Status, st.ScenarioName, st.TickCount, formatVitals(st.CurrentVitals))
}

func writeSession(w io.Writer, st api.SessionState) {
	_, _ = fmt.Fprintf(w, "session %d  %s  [%s]  tick %d\n", st.SessionID, st.ScenarioName, st.Status, st.TickCount)
	if st.Patient.Name != "" {
		_, _ = fmt.Fprintf(w, "patient  %s", st.Patient.Name)
		if st.Patient.Diagnosis != "" {
			_, _ = fmt.Fprintf(w, " (%s)", st.Patient.Diagnosis)
		}
		_, _ = fmt.Fprintln(w)
	}
	_, _ = fmt.Fprintf(w, "vitals   %s\n", formatVitals(st.CurrentVitals))
	ids := make([]string, 0, len(st.MedicationState))
	for id := range st.MedicationState {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		dose := st.MedicationState[id]
		_, _ = fmt.Fprintf(w, "med      %s\t%g %s\t[%g, %g]", id, dose.Dose, dose.Unit, dose.Min, dose.Max)
		if dose.Class != "" {
			_, _ = fmt.Fprintf(w, "\t%s", dose.Class)
		}
		_, _ = fmt.Fprintln(w)
	}
	_, _ = fmt.Fprintf(w, "target   %s\n", formatTarget(st.TargetStatus))
	if st.CompletionReason != nil {
		_, _ = fmt.Fprintf(w, "ended    %s", *st.CompletionReason)
		if st.EndedAt != nil {
			_, _ = fmt.Fprintf(w, " at %s", *st.EndedAt)
		}
		_, _ = fmt.Fprintln(w)
	}
}

func writeNote(w io.Writer, n api.NoteResponse) {
	_, _ = fmt.Fprintf(w, "%d\t%s\tuser %d\t%s", n.ID, n.CreatedAt, n.UserID, n.Content)
	if n.VitalsSnapshot != nil {
		_, _ = fmt.Fprintf(w, "\t[%s]", formatVitals(*n.VitalsSnapshot))
	}
	_, _ = fmt.Fprintln(w)
}
