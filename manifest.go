package slicescan

import (
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// manifest is the YAML form of a RecoverySet. Block indexes, owners and
// sizes are implied by the file list and rebuilt on load.
type manifest struct {
	BlockSize int            `yaml:"block_size"`
	Files     []manifestFile `yaml:"files"`
}

type manifestFile struct {
	Name   string          `yaml:"name"`
	Size   int64           `yaml:"size"`
	Flags  []string        `yaml:"flags,omitempty"`
	Blocks []manifestBlock `yaml:"blocks,omitempty"`
}

type manifestBlock struct {
	CRC string `yaml:"crc"`
	MD5 string `yaml:"md5"`
}

// WriteManifest encodes rs as YAML. CRCs are written as eight hex digits
// and digests as 32.
func WriteManifest(w io.Writer, rs *RecoverySet) error {
	m := manifest{BlockSize: rs.BlockSize}
	for i := range rs.Files {
		f := &rs.Files[i]
		mf := manifestFile{Name: f.Name, Size: f.Size, Flags: f.Flags.Names()}
		for b := f.FirstBlock; b < f.FirstBlock+f.BlockCount; b++ {
			blk := &rs.Blocks[b]
			mf.Blocks = append(mf.Blocks, manifestBlock{
				CRC: fmt.Sprintf("%08x", blk.CRC),
				MD5: blk.MD5.String(),
			})
		}
		m.Files = append(m.Files, mf)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return enc.Close()
}

// ReadManifest decodes a manifest written by WriteManifest and validates
// the resulting RecoverySet.
func ReadManifest(r io.Reader) (*RecoverySet, error) {
	var m manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	rs := &RecoverySet{BlockSize: m.BlockSize}
	if rs.BlockSize <= 0 || rs.BlockSize%4 != 0 {
		return nil, ErrInvalidBlockSize
	}
	bs := int64(rs.BlockSize)
	for i, mf := range m.Files {
		id := FileID(i)
		flags, err := ParseFileFlags(mf.Flags)
		if err != nil {
			return nil, fmt.Errorf("manifest file %q: %w", mf.Name, err)
		}
		rs.Files = append(rs.Files, FileRecord{
			ID:         id,
			Name:       mf.Name,
			Size:       mf.Size,
			FirstBlock: len(rs.Blocks),
			BlockCount: len(mf.Blocks),
			Flags:      flags,
		})
		for k, mb := range mf.Blocks {
			crc, err := strconv.ParseUint(mb.CRC, 16, 32)
			if err != nil {
				return nil, fmt.Errorf("manifest file %q block %d: crc: %w", mf.Name, k, err)
			}
			sum, err := ParseDigest(mb.MD5)
			if err != nil {
				return nil, fmt.Errorf("manifest file %q block %d: md5: %w", mf.Name, k, err)
			}
			size := bs
			if k == len(mf.Blocks)-1 && mf.Size%bs != 0 {
				size = mf.Size % bs
			}
			rs.Blocks = append(rs.Blocks, Block{
				Index: uint32(len(rs.Blocks)),
				File:  id,
				Size:  uint32(size),
				CRC:   uint32(crc),
				MD5:   sum,
			})
		}
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}
