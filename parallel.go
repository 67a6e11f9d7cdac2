package slicescan

import (
	"context"
	"errors"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// VerifyParallel verifies cands concurrently, one session per candidate,
// all sharing a single Index. Their tables are merged in candidate order
// into the table of a lead session built from opts, after which calculable
// blocks are resolved on the merged result.
//
// At most Config.Workers candidates run at once; zero means one per CPU.
// Callbacks passed through opts are invoked from several goroutines and
// must be safe for concurrent use. Fragments are kept per candidate, so
// blocks split across two candidates are only rejoined by a sequential
// Session.
//
// Error semantics:
//   - Candidates failing with ErrIO are logged and skipped; their report
//     holds the hits recorded before the failure.
//   - Any other error, including ErrCancelled, stops the remaining
//     candidates. Tables of the candidates that ran are still merged and
//     returned together with the first error.
func VerifyParallel(ctx context.Context, rs *RecoverySet, cands []Candidate, opts ...Option) (*Table, []*FileReport, error) {
	lead, err := NewSession(rs, opts...)
	if err != nil {
		return nil, nil, err
	}
	defer lead.Close()

	workers := lead.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	wopts := append(slices.Clone(opts), WithIndex(lead.idx), WithTable(nil), withoutProfiling())

	tables := make([]*Table, len(cands))
	reports := make([]*FileReport, len(cands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range cands {
		g.Go(func() error {
			s, err := NewSession(rs, wopts...)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.Close(); cerr != nil {
					lead.log.Warn("worker session close", "path", c.Path, "error", cerr)
				}
			}()
			reports[i], err = s.VerifyFile(gctx, c)
			tables[i] = s.table
			if errors.Is(err, ErrIO) {
				return nil
			}
			return err
		})
	}
	err = g.Wait()

	merged := 0
	for _, t := range tables {
		if t != nil {
			merged += lead.table.Merge(t)
		}
	}
	lead.newBlocks += merged
	if err != nil {
		return lead.table, reports, err
	}
	calc := lead.FindCalculable()
	lead.log.Info("parallel verification done",
		"candidates", len(cands),
		"workers", workers,
		"new_blocks", merged,
		"calculable", calc,
		"available", lead.table.Available(),
	)
	return lead.table, reports, nil
}
