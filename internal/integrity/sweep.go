package integrity

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tabvault/tabvault/internal/record"
)

// Collections is the full in-memory view of the store's domain records.
type Collections struct {
	Sessions   []*record.StoredSession
	Tabs       []*record.StoredTab
	Events     []*record.StoredNavigationEvent
	Boundaries []*record.StoredBoundary
}

// Payload converts the collections to a backup payload.
func (c *Collections) Payload() *record.BackupPayload {
	return &record.BackupPayload{
		Sessions:   c.Sessions,
		Tabs:       c.Tabs,
		Events:     c.Events,
		Boundaries: c.Boundaries,
	}
}

// LoadCollections pulls every container's records, one goroutine per
// container. Collection is bounded by the engine's scan cap, so a very
// large store yields a truncated (but usable) view.
func (v *Validator) LoadCollections(ctx context.Context) (*Collections, error) {
	cols := &Collections{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		cols.Sessions, err = v.engine.ListAllSessions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		cols.Tabs, err = v.engine.ListAllTabs(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		cols.Events, err = v.engine.ListAllEvents(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		cols.Boundaries, err = v.engine.ListBoundaries(gctx, "")
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}
	return cols, nil
}

// SweepStore validates everything: per-record checks run concurrently per
// container, then the relationship pass runs over the loaded collections.
// The outcome is recorded in the store metadata.
func (v *Validator) SweepStore(ctx context.Context) (*Result, error) {
	if !v.opts.EnableChecks {
		return &Result{IsValid: true}, nil
	}
	start := v.now()

	cols, err := v.LoadCollections(ctx)
	if err != nil {
		return nil, err
	}

	total := &Result{IsValid: true}
	var mu sync.Mutex // guards total
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		for _, s := range cols.Sessions {
			r := v.ValidateSession(s)
			mu.Lock()
			total.merge(r)
			mu.Unlock()
		}
		return nil
	})
	g.Go(func() error {
		for _, t := range cols.Tabs {
			r := v.ValidateTab(t)
			mu.Lock()
			total.merge(r)
			mu.Unlock()
		}
		return nil
	})
	g.Go(func() error {
		for _, ev := range cols.Events {
			r := v.ValidateEvent(ev)
			mu.Lock()
			total.merge(r)
			mu.Unlock()
		}
		return nil
	})
	_ = g.Wait()

	if v.opts.RelationshipValidation {
		total.merge(v.ValidateRelationships(cols.Sessions, cols.Tabs, cols.Events))
	}

	total.ValidationTime = v.now().Sub(start)

	if err := v.engine.RecordIntegrityCheck(ctx, total.IsValid); err != nil {
		v.logger.Warn("failed to record integrity check outcome", zap.Error(err))
	}
	v.logger.Info("integrity sweep finished",
		zap.Bool("valid", total.IsValid),
		zap.Int("errors", len(total.Errors)),
		zap.Int("warnings", len(total.Warnings)),
		zap.Duration("took", total.ValidationTime))
	return total, nil
}
