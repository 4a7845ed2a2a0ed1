// Package worker provides background job processing for MealDrop.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mealdrop/mealdrop/internal/device"
)

// DefaultCleanupAge is the inactive-token age used when a cleanup
// message does not specify one.
const DefaultCleanupAge = 30 * 24 * time.Hour

// Probe checks that a subsystem is reachable.
type Probe func(ctx context.Context) error

// JobRunner executes maintenance jobs against the device store and
// the subsystems the worker depends on.
type JobRunner struct {
	devices *device.Service
	probes  map[string]Probe
	logger  zerolog.Logger
}

// JobRunnerConfig holds configuration for the job runner.
type JobRunnerConfig struct {
	Devices *device.Service
	Probes  map[string]Probe
	Logger  zerolog.Logger
}

// NewJobRunner creates a new job runner.
func NewJobRunner(cfg JobRunnerConfig) *JobRunner {
	return &JobRunner{
		devices: cfg.Devices,
		probes:  cfg.Probes,
		logger:  cfg.Logger,
	}
}

// RunTokenCleanup hard-deletes inactive push tokens older than the
// given number of days. A non-positive value falls back to
// DefaultCleanupAge.
func (j *JobRunner) RunTokenCleanup(ctx context.Context, olderThanDays int) error {
	age := DefaultCleanupAge
	if olderThanDays > 0 {
		age = time.Duration(olderThanDays) * 24 * time.Hour
	}

	j.logger.Info().
		Dur("older_than", age).
		Msg("starting token cleanup")

	deleted, err := j.devices.CleanupInactive(ctx, age)
	if err != nil {
		return fmt.Errorf("token cleanup: %w", err)
	}

	j.logger.Info().
		Int64("deleted", deleted).
		Msg("token cleanup completed")

	return nil
}

// RunHealthCheck runs every configured probe and fails if any
// subsystem is unreachable.
func (j *JobRunner) RunHealthCheck(ctx context.Context) error {
	j.logger.Debug().Msg("running health check")

	var failed int
	for name, probe := range j.probes {
		if err := probe(ctx); err != nil {
			j.logger.Error().Err(err).Str("subsystem", name).Msg("health check probe failed")
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("health check failed: %d of %d probes", failed, len(j.probes))
	}

	j.logger.Debug().Msg("health check passed")
	return nil
}
