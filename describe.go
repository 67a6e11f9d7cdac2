package slicescan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"slices"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
)

// describedFile is the checksum list of one source file.
type describedFile struct {
	pos    int
	size   int64
	blocks []Block
}

// Describe builds a RecoverySet from the files names on fsys, checksumming
// them concurrently. Files keep the order of names and their blocks are
// numbered consecutively in that order.
//
// blockSize must be a positive multiple of four. Any unreadable file fails
// the whole call.
func Describe(ctx context.Context, fsys afero.Fs, names []string, blockSize int) (*RecoverySet, error) {
	if blockSize <= 0 || blockSize%4 != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}

	p := pool.NewWithResults[describedFile]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(runtime.NumCPU())
	for i, name := range names {
		p.Go(func(ctx context.Context) (describedFile, error) {
			d, err := describeFile(ctx, fsys, name, blockSize)
			if err != nil {
				return d, fmt.Errorf("describe %s: %w", name, err)
			}
			d.pos = i
			return d, nil
		})
	}
	files, err := p.Wait()
	if err != nil {
		return nil, err
	}
	slices.SortFunc(files, func(a, b describedFile) int { return a.pos - b.pos })

	rs := &RecoverySet{BlockSize: blockSize}
	for i, d := range files {
		id := FileID(i)
		rs.Files = append(rs.Files, FileRecord{
			ID:         id,
			Name:       names[d.pos],
			Size:       d.size,
			FirstBlock: len(rs.Blocks),
			BlockCount: len(d.blocks),
		})
		for _, b := range d.blocks {
			b.Index = uint32(len(rs.Blocks))
			b.File = id
			rs.Blocks = append(rs.Blocks, b)
		}
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

func describeFile(ctx context.Context, fsys afero.Fs, name string, bs int) (describedFile, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return describedFile{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return describedFile{}, err
	}
	if info.IsDir() {
		return describedFile{}, errors.New("is a directory")
	}

	d := describedFile{size: info.Size()}
	buf := getBuf(bs)
	defer putBuf(buf)
	for {
		if err := ctx.Err(); err != nil {
			return d, err
		}
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			d.blocks = append(d.blocks, Block{
				Size: uint32(n),
				CRC:  BlockCRC(buf[:n], bs),
				MD5:  BlockMD5(buf[:n], bs),
			})
		}
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return d, nil
		case err != nil:
			return d, err
		}
	}
}
