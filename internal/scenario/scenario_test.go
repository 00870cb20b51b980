package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/g960059/ehrsim/internal/model"
)

func TestExamplesAreValid(t *testing.T) {
	docs, err := Examples()
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "Post-Operative Hypertension Management", docs[0].Name)
	assert.Equal(t, "John Martinez", docs[0].Patient.Name)
	assert.Equal(t, "Diabetic Patient with Hypoglycemia", docs[1].Name)
	assert.Equal(t, "Maria Rodriguez", docs[1].Patient.Name)

	bg := docs[1].Vitals.Current.BloodGlucose
	require.NotNil(t, bg)
	assert.Equal(t, 48.0, *bg)
	assert.Nil(t, docs[0].Vitals.Current.BloodGlucose, "absent vitals must stay absent")
	require.NotNil(t, docs[0].Target)
	assert.Equal(t, 5, docs[0].Target.HoldTicksRequired)
}

func TestWriteReadFileAcrossFormats(t *testing.T) {
	docs, err := Examples()
	require.NoError(t, err)
	src := docs[0]

	dir := t.TempDir()
	for _, name := range []string{"case.toml", "case.json", "case.yml"} {
		path := filepath.Join(dir, "nested", name)
		require.NoError(t, WriteFile(path, src), name)

		got, err := ReadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, src, got, name)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 3, "temp files must not be left behind")
}

func TestFormatFromPathRejectsUnknownExtension(t *testing.T) {
	_, err := FormatFromPath("scenario.xml")
	require.Error(t, err)

	err = WriteFile(filepath.Join(t.TempDir(), "x.txt"), Document{Name: "x"})
	require.Error(t, err)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode([]byte("name: x\nsurprise: true\n"), FormatYAML)
	require.Error(t, err)

	_, err = Decode([]byte(`{"name":"x","surprise":true}`), FormatJSON)
	require.Error(t, err)

	_, err = Decode([]byte("name = 'x'\nsurprise = true\n"), FormatTOML)
	require.Error(t, err)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	doc := Document{
		Medications: []model.Medication{
			{ID: "a", Min: 10, Max: 0, InitialDose: 5},
			{ID: "a", Min: 0, Max: 5, InitialDose: 9, Step: -1},
			{ID: "", Min: 0, Max: 1, Effects: map[string]float64{"mood": 1}},
		},
		Target: &model.TargetSpec{Metric: "aura", Range: model.TargetRange{Min: 5, Max: 1}},
	}
	err := doc.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"name is required",
		"min 10 exceeds max 0",
		`duplicate id "a"`,
		"initialDose 9 outside",
		"step must not be negative",
		"id is required",
		`unknown vital metric "mood"`,
		`unknown vital metric "aura"`,
		"invalid range",
		"holdTicksRequired must be at least 1",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateRejectsBaselineOutsideLimits(t *testing.T) {
	doc := Document{
		Name: "edge",
		Vitals: model.VitalsBlock{Current: model.Vitals{
			HeartRate:        model.Float(215),
			OxygenSaturation: model.Float(60),
			RespiratoryRate:  model.Float(50),
		}},
	}
	require.NoError(t, doc.Validate())

	doc.Vitals.Current.HeartRate = model.Float(230)
	doc.Vitals.Current.Temperature = model.Float(45)
	doc.Vitals.Current.TemperatureUnit = "C"
	err := doc.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartRate 230 outside [20, 220]")
	assert.Contains(t, err.Error(), "outside [29, 43]")
}

func TestReadFileRejectsInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: \"\"\n"), 0o644))
	_, err := ReadFile(path)
	require.ErrorContains(t, err, "name is required")
}

type fakeSeeder struct {
	existing int64
	failOn   string
	created  []model.Scenario
}

func (f *fakeSeeder) CountScenarios(context.Context) (int64, error) {
	return f.existing, nil
}

func (f *fakeSeeder) CreateScenario(_ context.Context, name string, def model.ScenarioDefinition) (model.Scenario, error) {
	if name == f.failOn {
		return model.Scenario{}, errors.New("db failure")
	}
	sc := model.Scenario{ID: int64(len(f.created) + 1), Name: name, Definition: def}
	f.created = append(f.created, sc)
	return sc, nil
}

func TestSeedExamplesIntoEmptyCatalog(t *testing.T) {
	s := &fakeSeeder{}
	res, err := SeedExamples(context.Background(), s, nil)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	require.Len(t, res.Created, 2)
	assert.Equal(t, "Post-Operative Hypertension Management", res.Created[0].Name)
	assert.Equal(t, "Maria Rodriguez", res.Created[1].Definition.Patient.Name)
}

func TestSeedExamplesSkipsPopulatedCatalog(t *testing.T) {
	s := &fakeSeeder{existing: 1}
	res, err := SeedExamples(context.Background(), s, nil)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, s.created)
}

func TestSeedExamplesContinuesPastFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s := &fakeSeeder{failOn: "Post-Operative Hypertension Management"}

	res, err := SeedExamples(context.Background(), s, zap.New(core))
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, "Diabetic Patient with Hypoglycemia", res.Created[0].Name)
	assert.Equal(t, []string{"Post-Operative Hypertension Management"}, res.Failed)
	assert.Equal(t, 1, logs.FilterMessage("error creating scenario").Len())
}
