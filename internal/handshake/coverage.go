package handshake

// coverage is a bitmap over interval indices marking the positions already
// claimed by a matched pattern.
type coverage struct {
	words []uint64
	n     int
}

func newCoverage(n int) *coverage {
	return &coverage{words: make([]uint64, (n+63)/64), n: n}
}

func (c *coverage) claimed(i int) bool {
	if i < 0 || i >= c.n {
		return false
	}
	return c.words[i/64]&(1<<(uint(i)%64)) != 0
}

// anyClaimed reports whether any index in r is claimed.
func (c *coverage) anyClaimed(r Range) bool {
	for i := r.Begin; i < r.End; i++ {
		if c.claimed(i) {
			return true
		}
	}
	return false
}

func (c *coverage) claim(r Range) {
	for i := r.Begin; i < r.End && i < c.n; i++ {
		c.words[i/64] |= 1 << (uint(i) % 64)
	}
}
