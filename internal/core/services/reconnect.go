package services

import (
	"context"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"

	"go.uber.org/zap"
)

// SweepGuard gates the reconnection sweep across instances. The
// Redis-backed lock implements it; single-instance deployments run
// without one.
type SweepGuard interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ReconnectMetrics records sweep outcomes per provider.
type ReconnectMetrics interface {
	RecordReconnect(provider, outcome string)
}

// SweepSummary reports per-provider reconnect outcomes.
type SweepSummary struct {
	Attempted int
	Succeeded int
	Failed    int
	Skipped   bool // another instance held the sweep lock
	Duration  time.Duration
}

// ReconnectOrchestrator restores vendor sessions from stored credentials
// once at process start, after the listener is up. Failures are isolated
// per user and logged; there is no automatic retry or backoff, a
// user-triggered manual reconnect is the recovery path.
type ReconnectOrchestrator struct {
	adapters []ports.ProviderAdapter
	creds    ports.CredentialRepository
	guard    SweepGuard       // optional
	metrics  ReconnectMetrics // optional
	logger   *zap.SugaredLogger
}

func NewReconnectOrchestrator(
	adapters []ports.ProviderAdapter,
	creds ports.CredentialRepository,
	guard SweepGuard,
	metrics ReconnectMetrics,
	logger *zap.SugaredLogger,
) *ReconnectOrchestrator {
	return &ReconnectOrchestrator{
		adapters: adapters,
		creds:    creds,
		guard:    guard,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run performs the one-shot sweep. One corrupt or expired credential
// never blocks reconnection of the remaining users.
func (o *ReconnectOrchestrator) Run(ctx context.Context) SweepSummary {
	start := time.Now()
	summary := SweepSummary{}

	if o.guard != nil {
		acquired, err := o.guard.TryAcquire(ctx)
		if err != nil {
			o.logger.Warnw("sweep guard unavailable, running sweep anyway", "error", err)
		} else if !acquired {
			o.logger.Infow("reconnection sweep already running elsewhere, skipping")
			summary.Skipped = true
			return summary
		} else {
			defer func() {
				if err := o.guard.Release(context.Background()); err != nil {
					o.logger.Warnw("failed releasing sweep guard", "error", err)
				}
			}()
		}
	}

	for _, adapter := range o.adapters {
		provider := adapter.Provider()

		userIDs, err := o.creds.ListUserIDsWithStoredCredential(ctx, provider)
		if err != nil {
			o.logger.Errorw("failed listing stored credentials, skipping provider",
				"provider", provider, "error", err)
			continue
		}

		o.logger.Infow("starting reconnection sweep",
			"provider", provider, "users", len(userIDs))

		for _, userID := range userIDs {
			summary.Attempted++

			ok, err := o.reconnectOne(ctx, adapter, userID)
			outcome := "succeeded"
			switch {
			case err != nil:
				outcome = "failed"
				summary.Failed++
				o.logger.Warnw("reconnect failed",
					"provider", provider, "user_id", userID, "error", err)
			case !ok:
				outcome = "rejected"
				summary.Failed++
				o.logger.Warnw("reconnect rejected by vendor, credential kept for manual retry",
					"provider", provider, "user_id", userID)
			default:
				summary.Succeeded++
				o.logger.Infow("reconnect succeeded",
					"provider", provider, "user_id", userID)
			}
			if o.metrics != nil {
				o.metrics.RecordReconnect(string(provider), outcome)
			}
		}
	}

	summary.Duration = time.Since(start)
	o.logger.Infow("reconnection sweep finished",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.Duration,
	)
	return summary
}

// reconnectOne contains the per-user failure isolation: a panicking
// adapter counts as one failed user, nothing more.
func (o *ReconnectOrchestrator) reconnectOne(ctx context.Context, adapter ports.ProviderAdapter, userID domain.UserID) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			err = domain.ErrVendorUnavailable
			o.logger.Errorw("reconnect panicked",
				"provider", adapter.Provider(), "user_id", userID, "panic", rec)
		}
	}()

	return adapter.ConnectWithStoredCredentials(ctx, userID)
}
