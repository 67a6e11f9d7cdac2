package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-slicescan"
)

func init() {
	verifyCmd := &cobra.Command{
		Use:   "verify [flags] FILE...",
		Short: "Find the blocks of a manifest inside candidate files",
		Long: `Verify scans every candidate for the blocks listed in the manifest and
prints which files can be restored. A candidate whose base name matches an
expected file is treated as that file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runVerify,
	}
	f := verifyCmd.Flags()
	f.StringP("manifest", "m", "", "recovery set manifest (required)")
	f.String("mode", "auto", "verification mode: auto, aligned, simple or sliding")
	f.Bool("parallel", false, "verify candidates concurrently")
	f.String("scratch", "", "directory receiving a copy of every block found")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.String("pprof-addr", "", "serve pprof endpoints on this address")
	_ = verifyCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	manifestPath, _ := f.GetString("manifest")
	modeName, _ := f.GetString("mode")
	parallel, _ := f.GetBool("parallel")
	scratch, _ := f.GetString("scratch")
	metricsAddr, _ := f.GetString("metrics-addr")
	pprofAddr, _ := f.GetString("pprof-addr")
	log := newLogger()

	mode, ok := slicescan.ParseMode(modeName)
	if !ok {
		return fmt.Errorf("unknown mode %q", modeName)
	}
	cfg, err := slicescan.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	rs, err := readManifest(manifestPath)
	if err != nil {
		return err
	}

	opts := []slicescan.Option{
		slicescan.WithLogger(log),
		slicescan.WithConfig(cfg),
	}
	if scratch != "" {
		opts = append(opts, slicescan.WithScratch(afero.NewOsFs(), scratch))
	}
	if pprofAddr != "" {
		opts = append(opts, slicescan.WithProfiling(&slicescan.ProfilingConfig{
			EnableProfiling: true,
			ProfileAddr:     pprofAddr,
		}))
	}
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		m, err := slicescan.NewMetrics(reg)
		if err != nil {
			return err
		}
		opts = append(opts, slicescan.WithMetrics(m))
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics server stopped", "addr", metricsAddr, "error", err)
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cands := candidates(rs, args, mode)
	var table *slicescan.Table
	if parallel {
		table, _, err = slicescan.VerifyParallel(ctx, rs, cands, opts...)
	} else {
		table, err = verifySequential(ctx, rs, cands, opts)
	}
	if table != nil {
		printSummary(cmd.OutOrStdout(), rs, table)
	}
	return err
}

// candidates pairs every path with the expected file of the same base name.
func candidates(rs *slicescan.RecoverySet, paths []string, mode slicescan.Mode) []slicescan.Candidate {
	byName := make(map[string]slicescan.FileID, len(rs.Files))
	for _, f := range rs.Files {
		byName[filepath.Base(f.Name)] = f.ID
	}
	out := make([]slicescan.Candidate, 0, len(paths))
	for _, p := range paths {
		id, ok := byName[filepath.Base(p)]
		if !ok {
			id = slicescan.NoFile
		}
		out = append(out, slicescan.Candidate{Path: p, Identity: id, Mode: mode})
	}
	return out
}

func verifySequential(ctx context.Context, rs *slicescan.RecoverySet, cands []slicescan.Candidate, opts []slicescan.Option) (*slicescan.Table, error) {
	s, err := slicescan.NewSession(rs, opts...)
	if err != nil {
		return nil, err
	}
	for _, c := range cands {
		if _, err := s.VerifyFile(ctx, c); err != nil && !errors.Is(err, slicescan.ErrIO) {
			s.Close()
			return s.Table(), err
		}
	}
	s.FindCalculable()
	return s.Table(), s.Close()
}

func readManifest(path string) (*slicescan.RecoverySet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return slicescan.ReadManifest(f)
}

func printSummary(w io.Writer, rs *slicescan.RecoverySet, t *slicescan.Table) {
	for _, f := range rs.Files {
		found := 0
		for i := f.FirstBlock; i < f.FirstBlock+f.BlockCount; i++ {
			if t.Get(i).State.Available() {
				found++
			}
		}
		status := "complete"
		if found < f.BlockCount {
			status = "incomplete"
		}
		fmt.Fprintf(w, "%-10s %6d/%-6d %s\n", status, found, f.BlockCount, f.Name)
	}
	fmt.Fprintf(w, "available %d of %d blocks\n", t.Available(), t.Len())
}
