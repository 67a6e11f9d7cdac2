package slicescan

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// scratchWriter copies every newly found block to its place in a
// reconstruction of the expected file under dir. Only one file is open at a
// time; the handle is swapped when a block of another file arrives.
type scratchWriter struct {
	fs  afero.Fs
	dir string

	cur FileID
	f   afero.File
}

// WithScratch writes the content of every block the session finds into
// dir/<file name> at the block's offset, so a partial copy of each expected
// file is built up as candidates are verified. Missing blocks are left as
// holes.
func WithScratch(fsys afero.Fs, dir string) Option {
	return func(s *Session) {
		s.scratch = &scratchWriter{fs: fsys, dir: dir, cur: NoFile}
	}
}

func (w *scratchWriter) open(rec *FileRecord) error {
	if w.f != nil && w.cur == rec.ID {
		return nil
	}
	if err := w.Close(); err != nil {
		return err
	}
	name := filepath.Join(w.dir, filepath.FromSlash(rec.Name))
	if err := w.fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	f, err := w.fs.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open scratch file: %w", err)
	}
	w.f, w.cur = f, rec.ID
	return nil
}

func (w *scratchWriter) write(rec *FileRecord, off int64, content []byte) error {
	if err := w.open(rec); err != nil {
		return err
	}
	if _, err := w.f.WriteAt(content, off); err != nil {
		return fmt.Errorf("write scratch %s at %d: %w", rec.Name, off, err)
	}
	return nil
}

// Close closes the open scratch file, if any.
func (w *scratchWriter) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f, w.cur = nil, NoFile
	return err
}

// writeScratch stores the content of block b. The first failure disables
// scratch output for the rest of the session and is returned by Close.
func (s *Session) writeScratch(b int, content []byte) {
	if s.scratch == nil {
		return
	}
	rec := s.set.fileOf(b)
	if err := s.scratch.write(rec, s.set.blockOffset(b), content); err != nil {
		s.log.Warn("scratch output disabled", "block", b, "error", err)
		s.scratchErr = err
		s.scratch.Close()
		s.scratch = nil
	}
}
