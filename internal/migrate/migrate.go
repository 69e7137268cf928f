package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/integrity"
	"github.com/tabvault/tabvault/internal/schema"
	"github.com/tabvault/tabvault/internal/storage"
)

// ErrStepNotFound is returned when a required migration step was never
// registered.
var ErrStepNotFound = errors.New("migration step not found")

// Options configures the migration manager.
type Options struct {
	EnableBackups          bool
	ValidateAfterMigration bool
	MaxRetries             int
	RollbackOnFailure      bool
	LogLevel               string
}

// DefaultOptions returns the migration defaults.
func DefaultOptions() Options {
	return Options{
		EnableBackups:          true,
		ValidateAfterMigration: true,
		MaxRetries:             2,
		RollbackOnFailure:      true,
		LogLevel:               "info",
	}
}

// Step is one schema-version upgrade. Execute runs in its own transaction;
// Rollback (optional) runs only when Execute ultimately fails; Validate
// (optional) runs after a successful commit.
type Step struct {
	Version     int
	Description string
	Execute     func(ctx context.Context, tx *sql.Tx) error
	Rollback    func(ctx context.Context, tx *sql.Tx) error
	Validate    func(ctx context.Context, db *sql.DB) error
}

// SemVer renders the step's version in semantic-version form.
func (s Step) SemVer() *semver.Version {
	return semver.MustParse(fmt.Sprintf("%d.0.0", s.Version))
}

// Result summarizes one migration run.
type Result struct {
	FromVersion   int           `json:"from_version"`
	ToVersion     int           `json:"to_version"`
	StepsExecuted []string      `json:"steps_executed"`
	BackupID      string        `json:"backup_id,omitempty"`
	Success       bool          `json:"success"`
	Duration      time.Duration `json:"duration"`
}

// VersionInfo reports the store's version state without forcing an upgrade.
type VersionInfo struct {
	Current           int      `json:"current"`
	Latest            int      `json:"latest"`
	IsUpToDate        bool     `json:"is_up_to_date"`
	MigrationRequired bool     `json:"migration_required"`
	MigrationSteps    []string `json:"migration_steps"`
}

// Manager maintains the ordered step map and runs migrations.
type Manager struct {
	engine    *storage.Engine
	registry  *schema.Registry
	validator *integrity.Validator
	logger    *zap.Logger
	opts      Options
	steps     map[int]Step
}

// New creates a Manager with the built-in steps registered.
func New(engine *storage.Engine, registry *schema.Registry, validator *integrity.Validator, logger *zap.Logger, opts Options) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		engine:    engine,
		registry:  registry,
		validator: validator,
		logger:    logger,
		opts:      opts,
		steps:     make(map[int]Step),
	}
	for _, s := range builtinSteps(registry) {
		m.steps[s.Version] = s
	}
	return m
}

// Register adds or replaces a step for its target version.
func (m *Manager) Register(s Step) error {
	if s.Version < 1 || s.Execute == nil {
		return fmt.Errorf("invalid migration step for version %d", s.Version)
	}
	m.steps[s.Version] = s
	return nil
}

// pendingVersions lists registered step versions in (oldV, newV], ordered
// ascending by semantic version.
func (m *Manager) pendingVersions(oldV, newV int) []int {
	var versions []int
	for v := range m.steps {
		if v > oldV && v <= newV {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return m.steps[versions[i]].SemVer().LessThan(m.steps[versions[j]].SemVer())
	})
	return versions
}

// Perform migrates the store from oldV to newV. Equal versions execute
// zero steps and report success.
func (m *Manager) Perform(ctx context.Context, oldV, newV int) (*Result, error) {
	start := time.Now()
	res := &Result{FromVersion: oldV, ToVersion: newV}

	if oldV == newV {
		res.Success = true
		res.Duration = time.Since(start)
		return res, nil
	}
	if newV < oldV {
		return res, fmt.Errorf("cannot migrate backwards from %d to %d", oldV, newV)
	}

	// Every step from oldV+1 through newV must exist before anything runs.
	for v := oldV + 1; v <= newV; v++ {
		if _, ok := m.steps[v]; !ok {
			return res, fmt.Errorf("%w: version %d", ErrStepNotFound, v)
		}
	}

	// Snapshot first. A brand-new store (version 0) has nothing worth
	// snapshotting.
	if m.opts.EnableBackups && oldV > 0 {
		id, err := m.backupBeforeMigration(ctx)
		if err != nil {
			m.logger.Warn("pre-migration backup failed", zap.Error(err))
		} else {
			res.BackupID = id
		}
	}

	for _, v := range m.pendingVersions(oldV, newV) {
		step := m.steps[v]
		if err := m.runStep(ctx, step); err != nil {
			m.logger.Error("migration step failed",
				zap.Int("version", v),
				zap.String("step", step.Description),
				zap.Error(err))
			res.Duration = time.Since(start)
			return res, fmt.Errorf("migration step v%d (%s): %w", v, step.Description, err)
		}
		res.StepsExecuted = append(res.StepsExecuted, fmt.Sprintf("v%d: %s", v, step.Description))
		m.logger.Info("migration step applied",
			zap.Int("version", v), zap.String("step", step.Description))
	}

	if err := m.validateStructure(ctx); err != nil {
		res.Duration = time.Since(start)
		return res, fmt.Errorf("post-migration structural validation: %w", err)
	}
	if m.opts.ValidateAfterMigration {
		sweep, err := m.validator.SweepStore(ctx)
		if err != nil {
			res.Duration = time.Since(start)
			return res, fmt.Errorf("post-migration integrity sweep: %w", err)
		}
		if !sweep.IsValid {
			res.Duration = time.Since(start)
			return res, fmt.Errorf("post-migration integrity sweep found %d errors", len(sweep.Errors))
		}
	}

	if err := m.engine.StampSchemaVersion(ctx, newV); err != nil {
		res.Duration = time.Since(start)
		return res, err
	}

	res.Success = true
	res.Duration = time.Since(start)
	m.logger.Info("migration complete",
		zap.Int("from", oldV), zap.Int("to", newV),
		zap.Int("steps", len(res.StepsExecuted)),
		zap.Duration("took", res.Duration))
	return res, nil
}

// runStep executes one step with retries, rolling back on final failure.
func (m *Manager) runStep(ctx context.Context, step Step) error {
	var lastErr error
	attempts := m.opts.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		tx, err := m.engine.DB().BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := step.Execute(ctx, tx); err != nil {
			_ = tx.Rollback()
			lastErr = err
			continue
		}
		if err := tx.Commit(); err != nil {
			lastErr = err
			continue
		}

		if step.Validate != nil {
			if err := step.Validate(ctx, m.engine.DB()); err != nil {
				lastErr = err
				break
			}
		}
		return nil
	}

	if m.opts.RollbackOnFailure && step.Rollback != nil {
		tx, err := m.engine.DB().BeginTx(ctx, nil)
		if err == nil {
			if rbErr := step.Rollback(ctx, tx); rbErr != nil {
				_ = tx.Rollback()
				m.logger.Error("step rollback failed",
					zap.Int("version", step.Version), zap.Error(rbErr))
			} else if err := tx.Commit(); err != nil {
				m.logger.Error("step rollback commit failed",
					zap.Int("version", step.Version), zap.Error(err))
			}
		}
	}
	return lastErr
}

func (m *Manager) backupBeforeMigration(ctx context.Context) (string, error) {
	cols, err := m.validator.LoadCollections(ctx)
	if err != nil {
		return "", err
	}
	manifest, err := m.validator.CreateBackup(ctx, cols.Payload())
	if errors.Is(err, integrity.ErrBackupsDisabled) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return manifest.ID, nil
}

// validateStructure confirms every declared container, side table, and
// index physically exists.
func (m *Manager) validateStructure(ctx context.Context) error {
	db := m.engine.DB()
	for _, c := range m.registry.Containers() {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", c.Name).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("container %s is missing", c.Name)
		}
		if err != nil {
			return err
		}
		for _, idxName := range c.IndexNames() {
			err := db.QueryRowContext(ctx,
				"SELECT name FROM sqlite_master WHERE type='index' AND name=?", idxName).Scan(&name)
			if err == sql.ErrNoRows {
				return fmt.Errorf("index %s on %s is missing", idxName, c.Name)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// VersionInfo inspects the store's stamped version without upgrading.
func (m *Manager) VersionInfo(ctx context.Context) (*VersionInfo, error) {
	current, err := m.engine.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	latest := schema.SchemaVersion
	return &VersionInfo{
		Current:           current,
		Latest:            latest,
		IsUpToDate:        current >= latest,
		MigrationRequired: current < latest,
		MigrationSteps:    m.registry.MigrationNotes(current, latest),
	}, nil
}
