package vault

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// maintenanceInterval is how often the background loop wakes up. Actual
// work (backups, sweeps, stale cleanup) is gated by its own schedule.
const maintenanceInterval = 15 * time.Minute

// Run drives periodic maintenance until the context is cancelled. Each
// pass is best effort; failures are logged and the loop keeps going.
func (v *Vault) Run(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	var lastSweep time.Time
	for {
		select {
		case <-ctx.Done():
			v.logger.Debug("maintenance loop stopped")
			return
		case now := <-ticker.C:
			v.maintain(ctx, now, &lastSweep)
		}
	}
}

func (v *Vault) maintain(ctx context.Context, now time.Time, lastSweep *time.Time) {
	if v.cfg.Validator.EnableBackups {
		due, err := v.backupDue(ctx, now)
		if err != nil {
			v.logger.Warn("backup schedule check failed", zap.Error(err))
		} else if due {
			if m, err := v.CreateBackup(ctx); err != nil {
				v.logger.Warn("periodic backup failed", zap.Error(err))
			} else {
				v.logger.Info("periodic backup saved", zap.String("backup_id", m.ID))
			}
		}
	}

	if err := v.engine.CleanupStaleSessions(ctx); err != nil {
		v.logger.Warn("stale session cleanup failed", zap.Error(err))
	}

	// Sweep at most once per backup interval, falling back to daily when
	// backups are disabled.
	sweepEvery := v.cfg.ValidatorOptions().BackupInterval
	if sweepEvery <= 0 {
		sweepEvery = 24 * time.Hour
	}
	if v.cfg.Store.EnableIntegrityChecks && now.Sub(*lastSweep) >= sweepEvery {
		*lastSweep = now
		if result, err := v.validator.SweepStore(ctx); err != nil {
			v.logger.Warn("periodic integrity sweep failed", zap.Error(err))
		} else if !result.IsValid {
			v.logger.Warn("periodic integrity sweep found errors",
				zap.Int("errors", len(result.Errors)))
		}
	}
}
