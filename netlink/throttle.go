package netlink

import "sync/atomic"

// Guard is a named counter bounded by a ceiling. A ceiling of zero or less
// disables the bound.
type Guard struct {
	name    string
	ceiling int64
	count   atomic.Int64
}

// NewGuard returns a guard admitting at most ceiling concurrent tokens.
func NewGuard(name string, ceiling int) *Guard {
	return &Guard{name: name, ceiling: int64(ceiling)}
}

// Name returns the name the guard was created with.
func (g *Guard) Name() string {
	return g.name
}

// Allowed reports whether another token would currently be admitted.
func (g *Guard) Allowed() bool {
	return g.ceiling <= 0 || g.count.Load() < g.ceiling
}

// TokenIn unconditionally takes a token.
func (g *Guard) TokenIn() {
	g.count.Add(1)
}

// TokenInIfAllowed takes a token unless the guard is at its ceiling. The
// check and the increment happen atomically.
func (g *Guard) TokenInIfAllowed() bool {
	if g.ceiling <= 0 {
		g.count.Add(1)
		return true
	}
	for {
		c := g.count.Load()
		if c >= g.ceiling {
			return false
		}
		if g.count.CompareAndSwap(c, c+1) {
			return true
		}
	}
}

// TokenOut gives a token back.
func (g *Guard) TokenOut() {
	if g.count.Add(-1) < 0 {
		panic("netlink: guard " + g.name + " released more tokens than it handed out")
	}
}

// Count returns the number of tokens currently taken.
func (g *Guard) Count() int {
	return int(g.count.Load())
}

// Ceiling returns the configured bound.
func (g *Guard) Ceiling() int {
	return int(g.ceiling)
}
