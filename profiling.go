package slicescan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime/trace"
	"time"
)

// ProfilingConfig specifies profiling options for a session.
//
// When provided to NewSession via the WithProfiling option, it starts an
// HTTP server with pprof endpoints for on-demand profiling while the
// session is open.
type ProfilingConfig struct {
	// EnableProfiling starts an HTTP server with pprof endpoints.
	EnableProfiling bool `yaml:"enable" mapstructure:"enable"`

	// ProfileAddr specifies the address for the profiling HTTP server.
	// Defaults to ":6060" if empty. Use "localhost:6060" to restrict to
	// local access.
	ProfileAddr string `yaml:"addr" mapstructure:"addr"`

	// Trace enables execution tracing until the session is closed.
	Trace bool `yaml:"trace" mapstructure:"trace"`

	// TraceOutputPath specifies where to write the execution trace.
	// Defaults to "./trace.out" if empty and Trace is true.
	TraceOutputPath string `yaml:"trace_output" mapstructure:"trace_output"`
}

// WithProfiling enables profiling with the given configuration.
//
// Example:
//
//	s, err := slicescan.NewSession(rs,
//	    slicescan.WithProfiling(&slicescan.ProfilingConfig{
//	        EnableProfiling: true,
//	        ProfileAddr:     "localhost:6060",
//	    }),
//	)
func WithProfiling(config *ProfilingConfig) Option {
	return func(s *Session) {
		if config == nil {
			return
		}
		cfg := *config
		if cfg.EnableProfiling && cfg.ProfileAddr == "" {
			cfg.ProfileAddr = ":6060"
		}
		if cfg.Trace && cfg.TraceOutputPath == "" {
			cfg.TraceOutputPath = "./trace.out"
		}
		s.profiling = &cfg
	}
}

// withoutProfiling drops a profiling option applied earlier in the list.
func withoutProfiling() Option { return func(s *Session) { s.profiling = nil } }

// profiler owns the pprof server and the trace file of one session.
type profiler struct {
	server    *http.Server
	traceFile *os.File
}

// start brings up the profiling server and/or trace. A failure is reported
// but the session continues without profiling.
func (p *profiler) start(cfg *ProfilingConfig, log *slog.Logger) error {
	if cfg == nil {
		return nil
	}

	if cfg.EnableProfiling {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		p.server = &http.Server{
			Addr:              cfg.ProfileAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		srv := p.server
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("profiling server stopped", "addr", cfg.ProfileAddr, "error", err)
			}
		}()
		log.Info("profiling server started",
			"addr", cfg.ProfileAddr,
			"heap", fmt.Sprintf("http://%s/debug/pprof/heap", cfg.ProfileAddr),
		)
	}

	if cfg.Trace {
		f, err := os.Create(cfg.TraceOutputPath)
		if err != nil {
			return fmt.Errorf("create trace file: %w", err)
		}
		if err := trace.Start(f); err != nil {
			f.Close()
			return fmt.Errorf("start trace: %w", err)
		}
		p.traceFile = f
	}
	return nil
}

// stop shuts the server down and flushes the trace. It is safe to call
// when nothing was started.
func (p *profiler) stop(log *slog.Logger) {
	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.server.Shutdown(ctx); err != nil {
			log.Warn("profiling server shutdown", "error", err)
		}
		p.server = nil
	}
	if p.traceFile != nil {
		trace.Stop()
		p.traceFile.Close()
		p.traceFile = nil
	}
}
