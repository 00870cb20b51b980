package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/g960059/ehrsim/internal/db"
	"github.com/g960059/ehrsim/internal/model"
)

func NewStore(t *testing.T) (*db.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, filepath.Join(t.TempDir(), "ehrsim-test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := db.ApplyMigrations(ctx, store.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store, ctx
}

func SeedUser(t *testing.T, store *db.Store, ctx context.Context, username string) model.User {
	t.Helper()
	u, err := store.RegisterUser(ctx, model.User{
		FirstName: "Test",
		LastName:  username,
		Username:  username,
		Email:     username + "@example.com",
		Role:      model.RoleStudent,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// HeartRateScenario targets a heart rate of 60-100 held for hold ticks.
func HeartRateScenario(hold int) model.ScenarioDefinition {
	return model.ScenarioDefinition{
		Patient: model.Patient{Name: "Alex Doe", Age: 58, Diagnosis: "Rapid atrial fibrillation"},
		Vitals: model.VitalsBlock{Current: model.Vitals{
			BloodPressure:    &model.BloodPressure{Systolic: model.Float(148), Diastolic: model.Float(88), Unit: "mmHg"},
			HeartRate:        model.Float(80),
			RespiratoryRate:  model.Float(16),
			OxygenSaturation: model.Float(97),
		}},
		Medications: []model.Medication{
			{ID: "metoprolol", Name: "Metoprolol", Dosage: "5 mg", Route: "IV", Frequency: "q5min", Min: 0, Max: 15, Step: 2.5, Unit: "mg", InitialDose: 0},
		},
		Target: &model.TargetSpec{
			Description:       "Keep heart rate between 60 and 100",
			Metric:            "heartRate",
			Range:             model.TargetRange{Min: 60, Max: 100},
			HoldTicksRequired: hold,
		},
	}
}

func SeedScenario(t *testing.T, store *db.Store, ctx context.Context, name string, def model.ScenarioDefinition) model.Scenario {
	t.Helper()
	sc, err := store.CreateScenario(ctx, name, def)
	if err != nil {
		t.Fatalf("seed scenario: %v", err)
	}
	return sc
}
