package slicescan

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Digest is the raw 16-byte MD5 of a block.
//
// Block digests are always taken over the block content zero-padded to the
// session block size.
type Digest [md5.Size]byte

// ParseDigest converts a 32-char hex string to a Digest.
//
// An error is returned when the input is not exactly 32 characters long or
// cannot be decoded as hexadecimal.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != 2*md5.Size {
		return d, fmt.Errorf("invalid digest length %d", len(s))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, err
	}
	return d, nil
}

// String returns the lower-case hex form of d.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// BlockMD5 returns the MD5 of data zero-padded to blockSize bytes.
func BlockMD5(data []byte, blockSize int) Digest {
	h := md5.New()
	h.Write(data)
	for pad := blockSize - len(data); pad > 0; {
		k := min(pad, len(zeroPage))
		h.Write(zeroPage[:k])
		pad -= k
	}
	var d Digest
	h.Sum(d[:0])
	return d
}
