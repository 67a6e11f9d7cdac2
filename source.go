package slicescan

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/exp/mmap"
)

// Source is a readable candidate of known length. ReadAt must be safe for
// parallel calls, as io.ReaderAt requires, because the background reader
// and the tail probes may read concurrently.
type Source interface {
	io.ReaderAt
	Size() int64
}

// Opener turns a candidate path into a Source.
type Opener interface {
	Open(path string) (Source, io.Closer, error)
}

// MmapOpener maps candidate files read-only into memory.
type MmapOpener struct{}

type mmapSource struct{ *mmap.ReaderAt }

func (s mmapSource) Size() int64 { return int64(s.Len()) }

// Open maps path. The returned closer unmaps it.
func (MmapOpener) Open(path string) (Source, io.Closer, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return mmapSource{r}, r, nil
}

// AferoOpener opens candidates through an afero filesystem, which lets
// callers verify files held in memory or behind another backend.
type AferoOpener struct {
	Fs afero.Fs
}

// aferoSource serializes reads: some afero backends implement ReadAt by
// moving the shared file position.
type aferoSource struct {
	mu   *sync.Mutex
	f    afero.File
	size int64
}

func (s aferoSource) Size() int64 { return s.size }

func (s aferoSource) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.ReadAt(p, off)
}

// Open opens path on the wrapped filesystem.
func (o AferoOpener) Open(path string) (Source, io.Closer, error) {
	f, err := o.Fs.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}
	return aferoSource{mu: new(sync.Mutex), f: f, size: st.Size()}, f, nil
}

// BytesSource serves a candidate held in memory.
type BytesSource []byte

func (b BytesSource) Size() int64 { return int64(len(b)) }

func (b BytesSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// readFull reads exactly len(p) bytes at off or reports why it could not.
func readFull(src Source, p []byte, off int64) error {
	n, err := src.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}
