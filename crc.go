// crc.go
//
// Raw CRC-32 algebra for block matching.
// Every checksum handled by this package is CRC-32/IEEE (reflected polynomial
// 0xEDB88320) with the initial vector and the final complement removed. In
// that form the checksum is linear over XOR, which lets the scanner slide a
// window one byte at a time, strip zero padding off a short block and
// explain a corrupted byte from the difference of two checksums.
//
// Forward updates reuse hash/crc32 so they keep the slicing-by-8 fast path.
// The byte-wise tables below only serve the O(1) slide and the backward
// (zero-removal) step, which the standard library does not provide.

package slicescan

import (
	"encoding/binary"
	"hash/crc32"
	"sync"
)

var (
	// crcTable is the forward byte table of the reflected IEEE polynomial.
	crcTable = crc32.MakeTable(crc32.IEEE)

	// reverseTable inverts one zero-byte step. It is indexed by the top byte
	// of a forward table entry, which is unique for all 256 entries.
	reverseTable = func() *[256]uint32 {
		var t [256]uint32
		for i := range 256 {
			v := crcTable[i]
			t[v>>24] = (v << 8) | uint32(i)
		}
		return &t
	}()
)

// crcUpdate continues a raw CRC over p.
func crcUpdate(crc uint32, p []byte) uint32 {
	return ^crc32.Update(^crc, crcTable, p)
}

// RawCRC returns the raw CRC-32 of p.
func RawCRC(p []byte) uint32 { return crcUpdate(0, p) }

// crcZeros advances crc over n zero bytes.
func crcZeros(crc uint32, n int) uint32 {
	for n > 0 {
		k := min(n, len(zeroPage))
		crc = crcUpdate(crc, zeroPage[:k])
		n -= k
	}
	return crc
}

// BlockCRC returns the raw CRC-32 of data zero-padded to blockSize bytes.
// Blocks shorter than the session block size are always checksummed this way.
func BlockCRC(data []byte, blockSize int) uint32 {
	crc := crcUpdate(0, data)
	if pad := blockSize - len(data); pad > 0 {
		crc = crcZeros(crc, pad)
	}
	return crc
}

// RawFromIEEE converts the standard CRC-32 of an n-byte buffer into its raw
// form. The two differ by the standard checksum of n zero bytes.
func RawFromIEEE(std uint32, n int) uint32 {
	return std ^ IEEEOfZeros(n)
}

// IEEEOfZeros returns the standard CRC-32 of n zero bytes.
func IEEEOfZeros(n int) uint32 {
	return ^crcZeros(0xFFFFFFFF, n)
}

// reverseZero removes n trailing zero bytes from a raw CRC. It is the exact
// inverse of crcZeros.
func reverseZero(crc uint32, n int) uint32 {
	for ; n > 0; n-- {
		crc = reverseTable[crc>>24] ^ (crc << 8)
	}
	return crc
}

// slideCRC moves a raw window CRC forward by one byte: out leaves the front
// of the window and in enters at the back. tab must have been built for the
// window length.
func slideCRC(crc uint32, tab *[256]uint32, out, in byte) uint32 {
	return crcTable[byte(crc)^in] ^ (crc >> 8) ^ tab[out]
}

var (
	slideMu     sync.Mutex
	slideTables = map[int]*[256]uint32{}
)

// slideTable returns the departure table for windows of n bytes:
// tab[o] is the raw CRC of the byte o followed by n zero bytes. Tables are
// built once per window length and shared read-only afterwards.
func slideTable(n int) *[256]uint32 {
	slideMu.Lock()
	defer slideMu.Unlock()
	if t, ok := slideTables[n]; ok {
		return t
	}

	// The raw CRC is linear, so the eight single-bit rows determine the rest.
	var t [256]uint32
	for bit := range 8 {
		t[1<<bit] = crcZeros(crcTable[1<<bit], n)
	}
	for o := 1; o < 256; o++ {
		if o&(o-1) == 0 {
			continue
		}
		low := o & -o
		t[o] = t[low] ^ t[o^low]
	}
	slideTables[n] = &t
	return &t
}

// invertShort recovers the content of an n-byte buffer (n ≤ 4) from its raw
// CRC. With a zero initial register the bytes simply fold into the low
// bits of the register before n zero steps, so undoing those steps yields
// them in little-endian order. ok is false when the high bits do not vanish,
// meaning no n-byte buffer has that checksum.
func invertShort(crc uint32, n int) (content []byte, ok bool) {
	if n <= 0 || n > 4 {
		return nil, false
	}
	v := reverseZero(crc, n)
	if n < 4 && v>>(8*n) != 0 {
		return nil, false
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append([]byte(nil), b[:n]...), true
}
