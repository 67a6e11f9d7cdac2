// corrector.go
//
// Single-byte error correction driven by CRC algebra.
// A window whose CRC differs from the expected one by the effect of a single
// flipped byte can be repaired without knowing where the byte is: rolling the
// checksum difference backwards through the zero-byte inverse shrinks it to a
// lone byte exactly at the corrupted position. Each candidate found that way
// is confirmed against the expected MD5 before it is accepted.

package slicescan

import "fmt"

// DefaultCorrectLimit bounds the window length the corrector will search.
// The search is linear in the window length and hashes the whole block once
// per candidate position.
const DefaultCorrectLimit = 1 << 20

// Verdict is the outcome of a correction attempt.
type Verdict uint8

const (
	// Uncorrectable means no single-byte change explains the window.
	Uncorrectable Verdict = iota

	// Intact means the window already matches both checksums.
	Intact

	// Corrected means one byte was repaired in place.
	Corrected
)

var verdictNames = map[Verdict]string{
	Uncorrectable: "uncorrectable",
	Intact:        "intact",
	Corrected:     "corrected",
}

func (v Verdict) String() string { return verdictNames[v] }

// Correction locates a repaired byte: data[Offset] ^= Magnitude undoes (or
// redoes) the repair.
type Correction struct {
	Offset    int
	Magnitude byte
}

func (c Correction) String() string {
	return fmt.Sprintf("offset=%d magnitude=0x%02x", c.Offset, c.Magnitude)
}

// corrector carries the per-session limit so callers do not pass it around.
type corrector struct {
	limit int
}

// Correct checks window against the expected raw CRC and MD5 and, when only
// one byte is wrong, repairs it in place.
//
// window holds the block content; it is hashed zero-padded to blockSize, so
// short final blocks and joined fragments go through the same path. wantCRC
// is the raw CRC of the content alone (padding removed) and wantMD5 is the
// block digest.
//
// Error semantics:
//   - A CRC match with an MD5 mismatch is Uncorrectable: the window is a
//     collision, not a damaged copy.
//   - Windows longer than DefaultCorrectLimit are never searched.
func Correct(window []byte, blockSize int, wantCRC uint32, wantMD5 Digest) (Correction, Verdict) {
	c := corrector{limit: DefaultCorrectLimit}
	return c.correct(window, blockSize, RawCRC(window), wantCRC, wantMD5)
}

// correct is Correct with the window CRC already known.
func (c corrector) correct(window []byte, blockSize int, gotCRC, wantCRC uint32, wantMD5 Digest) (Correction, Verdict) {
	if gotCRC == wantCRC {
		if BlockMD5(window, blockSize) == wantMD5 {
			return Correction{}, Intact
		}
		return Correction{}, Uncorrectable
	}
	n := len(window)
	if n == 0 || n > c.limit {
		return Correction{}, Uncorrectable
	}

	residual := gotCRC ^ wantCRC
	for pos := 1; pos <= n; pos++ {
		residual = reverseTable[residual>>24] ^ (residual << 8)
		if residual&0xFFFFFF00 != 0 {
			continue
		}
		off, mag := n-pos, byte(residual)
		window[off] ^= mag
		if BlockMD5(window, blockSize) == wantMD5 {
			return Correction{Offset: off, Magnitude: mag}, Corrected
		}
		window[off] ^= mag
	}
	return Correction{}, Uncorrectable
}
