package slicescan

import (
	"errors"
	"fmt"
	"slices"
)

// FileID identifies a FileRecord inside a RecoverySet. It is the position of
// the record in RecoverySet.Files.
type FileID int32

// NoFile marks a candidate whose identity is unknown.
const NoFile FileID = -1

// Block is the immutable descriptor of one source block.
type Block struct {
	// Index is the block's position in RecoverySet.Blocks.
	Index uint32

	// File is the file that owned the block when the recovery set was
	// created. Blocks of one file are contiguous and in order.
	File FileID

	// Size is the number of content bytes, at most the set's block size. Only
	// the final block of a file may be shorter.
	Size uint32

	// CRC is the raw CRC-32 (no initial vector, no final complement) of the
	// content zero-padded to the block size.
	CRC uint32

	// MD5 is the digest of the content zero-padded to the block size.
	MD5 Digest
}

// FileFlags records what the surrounding repair workflow knows about a file.
// The scanner does not look at them; manifests carry them between runs.
type FileFlags uint8

const (
	FileMissing FileFlags = 1 << iota
	FileDamaged
	FileRenamed
	FileAppended
)

var fileFlagNames = [...]string{"missing", "damaged", "renamed", "appended"}

// Names lists the flags set in f, lowest bit first.
func (f FileFlags) Names() []string {
	var names []string
	for i, name := range fileFlagNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return names
}

// ParseFileFlags is the inverse of FileFlags.Names.
func ParseFileFlags(names []string) (FileFlags, error) {
	var f FileFlags
	for _, n := range names {
		i := slices.Index(fileFlagNames[:], n)
		if i < 0 {
			return 0, fmt.Errorf("unknown file flag %q", n)
		}
		f |= 1 << i
	}
	return f, nil
}

// FileRecord describes one expected file of a recovery set.
type FileRecord struct {
	// ID is the record's position in RecoverySet.Files.
	ID FileID

	// Name is the file's path relative to the recovery set root.
	Name string

	// Size is the expected size in bytes.
	Size int64

	// FirstBlock and BlockCount delimit the contiguous block range
	// [FirstBlock, FirstBlock+BlockCount) holding the file's content.
	FirstBlock int
	BlockCount int

	Flags FileFlags
}

// LastBlock returns the index of the file's final block, or -1 for an
// empty file.
func (f *FileRecord) LastBlock() int {
	if f.BlockCount == 0 {
		return -1
	}
	return f.FirstBlock + f.BlockCount - 1
}

// Contains reports whether block i belongs to the file.
func (f *FileRecord) Contains(i int) bool {
	return i >= f.FirstBlock && i < f.FirstBlock+f.BlockCount
}

// RecoverySet is the input contract of a verification session: the expected
// files, their blocks and the single block size in effect for all of them.
type RecoverySet struct {
	BlockSize int
	Files     []FileRecord
	Blocks    []Block
}

var (
	ErrInvalidBlockSize = errors.New("block size must be positive and a multiple of 4")
	ErrBadBlockLayout   = errors.New("recovery set block layout is inconsistent")
)

// Validate checks the structural invariants the scanner relies on.
//
// Error semantics:
//   - ErrInvalidBlockSize when BlockSize is not a positive multiple of 4.
//   - ErrBadBlockLayout (wrapped with details) when block ranges overlap, leave
//     gaps, disagree with the expected file size, or a block index, owner or
//     size is inconsistent.
func (rs *RecoverySet) Validate() error {
	if rs.BlockSize <= 0 || rs.BlockSize%4 != 0 {
		return ErrInvalidBlockSize
	}
	bs := int64(rs.BlockSize)
	next := 0
	for i := range rs.Files {
		f := &rs.Files[i]
		if f.ID != FileID(i) {
			return fmt.Errorf("%w: file %d has id %d", ErrBadBlockLayout, i, f.ID)
		}
		want := int((f.Size + bs - 1) / bs)
		if f.BlockCount != want {
			return fmt.Errorf("%w: file %q has %d blocks, size needs %d",
				ErrBadBlockLayout, f.Name, f.BlockCount, want)
		}
		if f.BlockCount == 0 {
			continue
		}
		if f.FirstBlock != next {
			return fmt.Errorf("%w: file %q starts at block %d, want %d",
				ErrBadBlockLayout, f.Name, f.FirstBlock, next)
		}
		next += f.BlockCount
	}
	if next != len(rs.Blocks) {
		return fmt.Errorf("%w: files cover %d blocks, set has %d", ErrBadBlockLayout, next, len(rs.Blocks))
	}
	for i := range rs.Blocks {
		b := &rs.Blocks[i]
		if b.Index != uint32(i) {
			return fmt.Errorf("%w: block %d has index %d", ErrBadBlockLayout, i, b.Index)
		}
		if b.File < 0 || int(b.File) >= len(rs.Files) || !rs.Files[b.File].Contains(i) {
			return fmt.Errorf("%w: block %d has owner %d", ErrBadBlockLayout, i, b.File)
		}
		f := &rs.Files[b.File]
		want := uint32(rs.BlockSize)
		if i == f.LastBlock() {
			if rem := f.Size % bs; rem != 0 {
				want = uint32(rem)
			}
		}
		if b.Size != want {
			return fmt.Errorf("%w: block %d size %d, want %d", ErrBadBlockLayout, i, b.Size, want)
		}
	}
	return nil
}

// blockOffset returns the byte offset of block i inside its own file.
func (rs *RecoverySet) blockOffset(i int) int64 {
	b := &rs.Blocks[i]
	return int64(i-rs.Files[b.File].FirstBlock) * int64(rs.BlockSize)
}

// fileOf returns the record owning block i.
func (rs *RecoverySet) fileOf(i int) *FileRecord { return &rs.Files[rs.Blocks[i].File] }

// isShort reports whether block i is shorter than the block size.
func (rs *RecoverySet) isShort(i int) bool { return int(rs.Blocks[i].Size) < rs.BlockSize }
