package matching

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
)

// fixtureBatch is the batch body understood by FixtureEngine
type fixtureBatch struct {
	Matches []Evidence `json:"matches"`
}

// FixtureEngine reads evidence embedded in the batch itself, in the form
// {"matches": [{"attenuationDurations": [20, 0, 0], ...}]}. Any other body
// yields no match. It is used for simulation and tests.
type FixtureEngine struct {
	mu       sync.Mutex
	keys     []TemporaryExposureKey
	requests []Request
}

var (
	_ Engine      = (*FixtureEngine)(nil)
	_ KeyExporter = (*FixtureEngine)(nil)
)

// NewFixtureEngine creates a FixtureEngine exporting keys
func NewFixtureEngine(keys ...TemporaryExposureKey) *FixtureEngine {
	return &FixtureEngine{keys: keys}
}

// ProvideDiagnosisKeys decodes the batch as fixture evidence
func (e *FixtureEngine) ProvideDiagnosisKeys(ctx context.Context, req Request) ([]Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	var batch fixtureBatch
	if err := json.Unmarshal(req.Batch, &batch); err != nil {
		slog.Debug("Batch is not fixture evidence, reporting no match", "day", req.Day.String())
		return nil, nil
	}
	return batch.Matches, nil
}

// Requests returns the requests seen so far
func (e *FixtureEngine) Requests() []Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.requests)
}

// TemporaryExposureKeyHistory returns the configured keys
func (e *FixtureEngine) TemporaryExposureKeyHistory(ctx context.Context) ([]TemporaryExposureKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(e.keys), nil
}
