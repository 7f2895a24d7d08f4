// Package runner orchestrates the dump and restore procedures.
package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/ewiniecke/nb27-backup/internal/services/archive"
	"github.com/ewiniecke/nb27-backup/internal/services/metrics"
	"github.com/ewiniecke/nb27-backup/internal/services/postgres"
	"github.com/ewiniecke/nb27-backup/internal/services/telegram"
	"github.com/ewiniecke/nb27-backup/internal/services/workspace"
	"github.com/rs/zerolog"
)

// Clock returns the current time. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Services bundles the collaborators of both procedures.
type Services struct {
	Postgres  postgres.Service
	Admin     postgres.Admin
	Workspace workspace.Service
	Archive   archive.Service // nil when no bucket is configured
	Telegram  telegram.Service
	Metrics   metrics.Service
	Clock     Clock
}

// DefaultServices builds the production collaborators for cfg. Transfer
// progress bars are drawn to progress when it is non-nil.
func DefaultServices(ctx context.Context, cfg *models.Config, logger zerolog.Logger, progress io.Writer) (Services, error) {
	svcs := Services{
		Postgres:  postgres.New(logger),
		Admin:     postgres.NewAdmin(logger),
		Workspace: workspace.New(logger),
		Telegram:  telegram.New(logger),
		Metrics:   metrics.New(logger, cfg.Metrics.Textfile),
		Clock:     systemClock{},
	}

	if cfg.Archive.Enabled() {
		store, err := archive.New(ctx, cfg.Archive, logger)
		if err != nil {
			return Services{}, fmt.Errorf("%w: %v", models.ErrConfig, err)
		}
		if progress != nil {
			store.WithProgress(progress)
		}
		svcs.Archive = store
	}

	return svcs, nil
}

func (s Services) clock() Clock {
	if s.Clock == nil {
		return systemClock{}
	}
	return s.Clock
}

// finish sends the optional notification and writes the optional metrics of
// a run. Neither can fail the run.
func finish(ctx context.Context, logger zerolog.Logger, svcs Services, cfg *models.Config, msg models.TelegramMessage, run metrics.Run, runErr error, failedStep string) {
	if runErr != nil {
		msg.ErrorMessage = runErr.Error()
		msg.FailedStep = failedStep
		logger.Error().Err(runErr).Str("step", failedStep).Msg("run failed")
	}

	if svcs.Metrics != nil {
		run.ExitCode = ExitCode(runErr)
		if err := svcs.Metrics.Record(run); err != nil {
			logger.Warn().Err(err).Msg("failed to write metrics")
		}
	}

	if cfg == nil || cfg.Telegram == nil || svcs.Telegram == nil {
		return
	}

	// The run context may already be cancelled; the notification still goes out.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	result, err := svcs.Telegram.SendNotification(notifyCtx, *cfg.Telegram, msg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	logger.Info().Msg("Telegram notification sent")
}
