// Package slicescan locates the blocks of a parity recovery set inside
// arbitrary candidate files.
//
// A recovery set lists expected files as ordered runs of fixed-size blocks,
// each known only by its size, CRC-32 and MD5. Candidates may be renamed,
// truncated, shifted by inserted or deleted bytes, concatenated, split, or
// carry single-byte damage. The package finds every block that is still
// present and reports where it was found.
//
// IMPLEMENTATION:
// A Session builds a CRC index of the recovery set once and then verifies
// candidates one at a time. Depending on what is known about a candidate it
// compares blocks only at their expected offsets or slides a window over
// the whole file one byte at a time, maintaining the window CRC in O(1) per
// step. Every CRC hit is confirmed by MD5. Windows that are one byte away
// from a block are repaired by CRC algebra, and blocks cut in two by a file
// boundary are rejoined from fragments kept across candidates.
//
// Reads are double buffered: a background goroutine loads the next chunk
// while the current one is hashed. Results only ever add information: a
// block once found is never unmarked.
package slicescan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrIO marks a candidate that could not be read. Only that candidate is
	// abandoned; the session stays usable.
	ErrIO = errors.New("candidate I/O error")

	// ErrCancelled is returned when the context ends or the progress callback
	// asks to stop. It is never wrapped in ErrIO.
	ErrCancelled = errors.New("verification cancelled")

	ErrSessionClosed = errors.New("session is closed")
)

// FileError reports an I/O failure on one candidate.
type FileError struct {
	Path   string
	Offset int64
	Err    error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s at offset %d: %v", e.Path, e.Offset, e.Err)
}

func (e *FileError) Unwrap() []error { return []error{ErrIO, e.Err} }

// Method tells how a block was matched.
type Method uint8

const (
	// MethodSearch is a sliding-window hit found through the index.
	MethodSearch Method = iota

	// MethodNext is a hit at the offset predicted from the previous block.
	MethodNext

	// MethodTail is a short final block matched by its unpadded CRC.
	MethodTail

	// MethodCorrected is a hit after repairing one byte.
	MethodCorrected

	// MethodAligned is a hit at a block-aligned offset.
	MethodAligned

	// MethodWhole is a small file matched by the digest of its whole content.
	MethodWhole

	// MethodFragment is a block joined from two fragments.
	MethodFragment
)

var methodNames = map[Method]string{
	MethodSearch:    "search",
	MethodNext:      "next",
	MethodTail:      "tail",
	MethodCorrected: "corrected",
	MethodAligned:   "aligned",
	MethodWhole:     "whole",
	MethodFragment:  "fragment",
}

func (m Method) String() string { return methodNames[m] }

// Hit is one block matched in a candidate.
type Hit struct {
	// Block is the matched block index.
	Block uint32

	// Candidate is the path of the file the block was found in.
	Candidate string

	// Offset is where the block starts in the candidate, or -1 for blocks
	// joined from fragments.
	Offset int64

	Method Method

	// New is set when this hit moved the block out of NotFound.
	New bool

	// Correction is set for MethodCorrected and for fragments that needed a
	// repair.
	Correction *Correction

	// Data holds the block content when it differs from the candidate bytes
	// (corrected or joined). It is nil for verbatim hits.
	Data []byte
}

// Candidate is one file to verify.
type Candidate struct {
	// Path is opened through the session's Opener unless Source is set.
	Path   string
	Source Source

	// Identity is the recovery-set file this candidate is believed to be,
	// or NoFile.
	Identity FileID

	// StartOffset skips bytes already verified by an earlier pass.
	StartOffset int64

	// Mode selects the verification policy. The zero value is ModeAuto.
	Mode Mode
}

// FileReport summarizes the verification of one candidate.
type FileReport struct {
	Path     string
	Size     int64
	Identity FileID

	// Modes lists the policies that ran, in order.
	Modes []Mode

	// Hits lists each block matched at most once per candidate.
	Hits []Hit

	// NewBlocks counts blocks that left NotFound because of this candidate.
	NewBlocks int

	Collisions     int
	GuardSkips     int
	OverlapSkips   int
	FragmentsSaved int

	// Windows counts the positions the sliding scanner examined.
	Windows int

	// Memoized is set when hits were replayed from the result memo instead
	// of scanning.
	Memoized bool

	Duration time.Duration
}

// Progress is passed to the progress callback.
type Progress struct {
	Path string

	// Done and Size give the position inside the current candidate.
	Done int64
	Size int64

	// Available counts blocks not NotFound across the session.
	Available int
	Total     int
}

// ProgressFunc is called at most once per Config.ProgressInterval while a
// candidate is scanned. Returning false cancels the verification.
type ProgressFunc func(Progress) bool

// HitFunc receives every hit as soon as it is recorded.
type HitFunc func(Hit)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithConfig replaces DefaultConfig.
func WithConfig(c Config) Option { return func(s *Session) { s.cfg = c } }

// WithMetrics records scanner events on m.
func WithMetrics(m *Metrics) Option { return func(s *Session) { s.metrics = m } }

// WithProgress installs the progress and cancellation callback.
func WithProgress(fn ProgressFunc) Option { return func(s *Session) { s.progress = fn } }

// WithHitHandler streams hits to fn as they are recorded.
func WithHitHandler(fn HitFunc) Option { return func(s *Session) { s.onHit = fn } }

// WithOpener sets how candidate paths are opened. The default maps files
// into memory.
func WithOpener(o Opener) Option { return func(s *Session) { s.opener = o } }

// WithIndex reuses an index built for the same recovery set, typically
// shared by parallel sessions.
func WithIndex(idx *Index) Option { return func(s *Session) { s.idx = idx } }

// WithTable continues from an existing discovery table instead of a fresh
// one. The table must have one entry per block.
func WithTable(t *Table) Option { return func(s *Session) { s.table = t } }

// WithResultMemo replays hits of candidates verified before with identical
// content and records new ones.
func WithResultMemo(m *ResultMemo) Option { return func(s *Session) { s.memo = m } }

// Session verifies candidates against one recovery set.
//
// A Session owns its discovery table, fragment pool and scratch output, and
// is not safe for concurrent use. Run several sessions sharing one Index to
// verify candidates in parallel.
type Session struct {
	id  uuid.UUID
	set *RecoverySet
	idx *Index
	cfg Config

	table *Table
	frags *fragmentPool
	fix   corrector

	scratch    *scratchWriter
	scratchErr error

	log      *slog.Logger
	metrics  *Metrics
	progress ProgressFunc
	onHit    HitFunc
	opener   Opener
	memo     *ResultMemo
	setKey   uint64

	profiling *ProfilingConfig
	prof      profiler

	newBlocks int
	closed    bool
}

// NewSession validates rs, builds its index and prepares the fragment pool.
//
// The session degrades instead of failing when the fragment pool cannot be
// sized: assembly is disabled and a warning is logged.
func NewSession(rs *RecoverySet, opts ...Option) (*Session, error) {
	s := &Session{
		id:     uuid.New(),
		set:    rs,
		cfg:    DefaultConfig(),
		log:    slog.Default(),
		opener: MmapOpener{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	s.log = s.log.With("session", s.id.String())
	s.fix = corrector{limit: s.cfg.CorrectLimit}

	if s.idx == nil {
		idx, err := BuildIndex(rs)
		if err != nil {
			return nil, err
		}
		s.idx = idx
	} else if s.idx.blockSize != rs.BlockSize || s.idx.Len() != len(rs.Blocks) {
		return nil, fmt.Errorf("%w: shared index does not match recovery set", ErrBadBlockLayout)
	}
	if s.table == nil {
		s.table = NewTable(len(rs.Blocks))
	} else if s.table.Len() != len(rs.Blocks) {
		return nil, fmt.Errorf("%w: table has %d entries, set has %d blocks",
			ErrBadBlockLayout, s.table.Len(), len(rs.Blocks))
	}
	if s.memo != nil {
		s.setKey = setFingerprint(rs)
	}

	missing := len(rs.Blocks) - s.table.Available()
	frags, err := newFragmentPool(rs.BlockSize, fragmentCapacity(rs, s.cfg.FragmentMemory, missing))
	if err != nil {
		s.log.Warn("fragment assembly disabled", "error", err)
	} else {
		s.frags = frags
	}

	if err := s.prof.start(s.profiling, s.log); err != nil {
		s.log.Warn("profiling unavailable", "error", err)
	}
	return s, nil
}

// ID returns the session identifier used in log records.
func (s *Session) ID() uuid.UUID { return s.id }

// Table returns the session's discovery table.
func (s *Session) Table() *Table { return s.table }

// Index returns the session's checksum index.
func (s *Session) Index() *Index { return s.idx }

// NewBlocks returns how many blocks this session moved out of NotFound.
func (s *Session) NewBlocks() int { return s.newBlocks }

// FragmentsEnabled reports whether fragment assembly is active.
func (s *Session) FragmentsEnabled() bool { return s.frags != nil }

// VerifyFile scans one candidate and records every block it proves present.
//
// Error semantics:
//   - Errors matching ErrIO (a *FileError) abort this candidate only. Hits
//     recorded before the failure stay recorded and are returned in the
//     report.
//   - ErrCancelled is returned when ctx ends or the progress callback
//     declines. The report holds the hits recorded so far; the background
//     reader has been joined and all buffers released.
//   - ErrSessionClosed after Close.
func (s *Session) VerifyFile(ctx context.Context, c Candidate) (*FileReport, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if c.Identity != NoFile && (c.Identity < 0 || int(c.Identity) >= len(s.set.Files)) {
		return nil, fmt.Errorf("candidate %s: unknown file id %d", c.Path, c.Identity)
	}
	started := time.Now()

	src := c.Source
	if src == nil {
		var (
			closer io.Closer
			err    error
		)
		src, closer, err = s.opener.Open(c.Path)
		if err != nil {
			s.metrics.fileError()
			return nil, &FileError{Path: c.Path, Err: err}
		}
		defer closer.Close()
	}

	fs := &fileScan{
		s:    s,
		ctx:  ctx,
		src:  src,
		path: c.Path,
		size: src.Size(),
		hint: c.Identity,
		report: &FileReport{
			Path:     c.Path,
			Size:     src.Size(),
			Identity: c.Identity,
		},
		lastTick: started,
	}
	s.table.beginFile()

	err := fs.run(c)
	if err != nil && ctx.Err() != nil {
		// A read interrupted by cancellation is not an I/O failure.
		err = ErrCancelled
	}
	fs.report.Duration = time.Since(started)
	s.metrics.fileDone(fs.report.Duration.Seconds())

	if len(fs.report.Hits) > 0 {
		s.sweepFragments(fs)
	}

	switch {
	case errors.Is(err, ErrCancelled):
		s.log.Info("verification cancelled", "path", c.Path, "new_blocks", fs.report.NewBlocks)
	case err != nil:
		s.metrics.fileError()
		s.log.Warn("candidate abandoned", "path", c.Path, "error", err, "new_blocks", fs.report.NewBlocks)
	default:
		s.log.Info("candidate verified",
			"path", c.Path,
			"size", fs.size,
			"modes", fs.report.Modes,
			"hits", len(fs.report.Hits),
			"new_blocks", fs.report.NewBlocks,
			"collisions", fs.report.Collisions,
			"memoized", fs.report.Memoized,
			"elapsed", fs.report.Duration,
		)
	}
	return fs.report, err
}

// FindCalculable marks blocks whose content follows from their checksums or
// from another found block. It returns the number of blocks marked.
func (s *Session) FindCalculable() int {
	n := FindCalculable(s.set, s.idx, s.table)
	s.newBlocks += n
	return n
}

// Close releases the scratch output and stops profiling. It returns the
// first scratch write error encountered, if any.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.prof.stop(s.log)
	firstErr := s.scratchErr
	if s.scratch != nil {
		if err := s.scratch.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	attrs := []any{"new_blocks", s.newBlocks, "available", s.table.Available()}
	if s.frags != nil {
		attrs = append(attrs, "fragments_pending", s.frags.len(), "fragments_evicted", s.frags.evicted)
	}
	s.log.Debug("session closed", attrs...)
	return firstErr
}
