package slicescan

import "sync"

// zeroPage is a read-only source of zero bytes for padding hashes and CRCs.
var zeroPage = make([]byte, 64<<10)

// bufPools hands out scan buffers keyed by length. A session allocates two
// buffers of twice the block size plus one read chunk per file, and block
// sizes are fixed for the lifetime of a recovery set, so the same few
// lengths are recycled across files and sessions.
var bufPools sync.Map // int -> *sync.Pool

func poolFor(n int) *sync.Pool {
	if p, ok := bufPools.Load(n); ok {
		return p.(*sync.Pool)
	}
	p, _ := bufPools.LoadOrStore(n, &sync.Pool{
		New: func() any {
			b := make([]byte, n)
			return &b
		},
	})
	return p.(*sync.Pool)
}

// getBuf obtains a zeroed buffer of exactly n bytes.
func getBuf(n int) []byte {
	b := *poolFor(n).Get().(*[]byte)
	clear(b)
	return b
}

// putBuf returns a buffer obtained from getBuf.
func putBuf(b []byte) {
	if len(b) == 0 {
		return
	}
	poolFor(len(b)).Put(&b)
}
