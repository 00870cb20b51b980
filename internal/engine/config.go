package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/g960059/ehrsim/internal/model"
	"github.com/g960059/ehrsim/internal/vitals"
)

// Store is the slice of the persistence layer the engine depends on.
type Store interface {
	GetScenarioByID(ctx context.Context, id int64) (model.Scenario, error)
	UserExists(ctx context.Context, id int64) (bool, error)
	RecordSessionStart(ctx context.Context, scenarioID, userID int64, at time.Time) (int64, error)
	RecordSessionEnd(ctx context.Context, sessionID int64, at time.Time) error
}

// Advancer computes the next vitals vector. vitals.Model is the production
// implementation.
type Advancer interface {
	Advance(current model.Vitals, doses map[string]model.MedicationDose, tick int64) model.Vitals
}

type Config struct {
	TickInterval time.Duration
	// EvictAfter is how long an ended session stays readable before
	// EvictExpired drops it.
	EvictAfter time.Duration
	// MaxTicks ends a running session with reason timeout; zero disables it.
	MaxTicks    int64
	VitalsNoise float64
	// Seed is mixed with the session id to seed each vitals model. Zero picks
	// a random base at construction.
	Seed        uint64
	Now         func() time.Time
	NewAdvancer func(def model.ScenarioDefinition, seed uint64, noise float64) Advancer
	Logger      *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		TickInterval: time.Second,
		EvictAfter:   5 * time.Minute,
		MaxTicks:     0,
		VitalsNoise:  1.0,
		Now:          func() time.Time { return time.Now().UTC() },
		NewAdvancer:  defaultAdvancer,
	}
}

func defaultAdvancer(def model.ScenarioDefinition, seed uint64, noise float64) Advancer {
	return vitals.NewModel(def.Vitals.Current, def.Medications, seed, noise)
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.EvictAfter <= 0 {
		c.EvictAfter = d.EvictAfter
	}
	if c.MaxTicks < 0 {
		c.MaxTicks = 0
	}
	if c.VitalsNoise < 0 {
		c.VitalsNoise = 0
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	if c.NewAdvancer == nil {
		c.NewAdvancer = d.NewAdvancer
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
