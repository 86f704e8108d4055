// Package harvest drives a full collection pass: discover sources across
// providers in parallel, extract their session records, and merge everything
// into the store one unit of work at a time.
package harvest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nervosys/chasm/internal/logging"
	"github.com/nervosys/chasm/internal/normalize"
	"github.com/nervosys/chasm/internal/provider"
	"github.com/nervosys/chasm/internal/store"
)

// extractConcurrency bounds parallel source extraction. Reads are cheap;
// all writes still funnel through the store's single writer lane.
const extractConcurrency = 4

// SourceResult reports the outcome for one discovered source.
type SourceResult struct {
	Provider string
	URI      string
	Sessions int
	Created  int
	Updated  int
	Branched int
	Skipped  int
	Err      error
}

// Summary aggregates one harvest pass. A failed source never aborts the
// pass; its error lands here and the rest proceed.
type Summary struct {
	Sources  []SourceResult
	Created  int
	Updated  int
	Branched int
	Skipped  int
	Failed   int
}

// Runner executes harvest passes against a store.
type Runner struct {
	store      *store.Store
	registry   *provider.Registry
	maxRetries int
}

// NewRunner builds a runner. maxRetries bounds write retries on lock
// contention.
func NewRunner(st *store.Store, reg *provider.Registry, maxRetries int) *Runner {
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &Runner{store: st, registry: reg, maxRetries: maxRetries}
}

// Run harvests the given providers (all registered when ids is empty).
// Discovery and extraction fan out; each record merges in its own retried
// unit of work.
func (r *Runner) Run(ctx context.Context, ids []string) (*Summary, error) {
	adapters, err := r.registry.Select(ids)
	if err != nil {
		return nil, err
	}

	type sourceJob struct {
		adapter provider.Adapter
		loc     provider.SourceLocation
	}

	var jobs []sourceJob
	summary := &Summary{}

	for _, ad := range adapters {
		locs, err := ad.Discover(ctx)
		if err != nil {
			logging.L().Warnw("discovery failed", "provider", ad.ID(), "error", err)
			summary.Sources = append(summary.Sources, SourceResult{Provider: ad.ID(), Err: err})
			summary.Failed++
			continue
		}
		for _, loc := range locs {
			jobs = append(jobs, sourceJob{adapter: ad, loc: loc})
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractConcurrency)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			res := r.harvestSource(gctx, job.adapter, job.loc)

			mu.Lock()
			summary.Sources = append(summary.Sources, res)
			summary.Created += res.Created
			summary.Updated += res.Updated
			summary.Branched += res.Branched
			summary.Skipped += res.Skipped
			if res.Err != nil {
				summary.Failed++
			}
			mu.Unlock()

			// Source failures are recorded, not propagated: one corrupt
			// file must not cancel the sibling extractions.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	logging.L().Infow("harvest complete",
		"sources", len(summary.Sources), "created", summary.Created,
		"updated", summary.Updated, "branched", summary.Branched,
		"skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func (r *Runner) harvestSource(ctx context.Context, ad provider.Adapter, loc provider.SourceLocation) SourceResult {
	res := SourceResult{Provider: ad.ID(), URI: loc.URI}

	records, err := ad.Extract(ctx, loc)
	if err != nil {
		logging.L().Warnw("extraction failed", "provider", ad.ID(), "source", loc.URI, "error", err)
		res.Err = err
		return res
	}
	res.Sessions = len(records)

	workspaceID, err := r.resolveWorkspace(ctx, loc)
	if err != nil {
		res.Err = err
		return res
	}

	for _, rec := range records {
		var out *normalize.Result
		err := r.store.RunWithRetry(ctx, r.maxRetries, func(t *store.Tx) error {
			var applyErr error
			out, applyErr = normalize.Apply(t, workspaceID, rec)
			return applyErr
		})
		if errors.Is(err, normalize.ErrEmptyRecord) {
			res.Skipped++
			continue
		}
		if err != nil {
			logging.L().Warnw("merge failed",
				"provider", ad.ID(), "source", loc.URI, "session", rec.NativeID, "error", err)
			res.Err = err
			continue
		}

		switch {
		case out.Unchanged:
			res.Skipped++
		case out.Created:
			res.Created++
		case out.NewBranch != "":
			res.Branched++
		default:
			res.Updated++
		}
	}
	return res
}

// resolveWorkspace maps a source's workspace hint to a workspace row,
// creating it on first sight. Sources without a hint stay workspace-less.
func (r *Runner) resolveWorkspace(ctx context.Context, loc provider.SourceLocation) (*string, error) {
	if loc.WorkspaceHint == "" {
		return nil, nil
	}

	var id string
	err := r.store.RunWithRetry(ctx, r.maxRetries, func(t *store.Tx) error {
		ws, err := t.FindWorkspaceByPath(loc.WorkspaceHint, loc.Provider)
		if err == nil {
			id = ws.ID
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		ws = &store.Workspace{
			Name:     workspaceName(loc.WorkspaceHint),
			Path:     loc.WorkspaceHint,
			Provider: loc.Provider,
		}
		if err := t.CreateWorkspace(ws); err != nil {
			return err
		}
		id = ws.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func workspaceName(path string) string {
	name := filepath.Base(filepath.Clean(path))
	if name == "." || name == string(filepath.Separator) {
		return path
	}
	return name
}
