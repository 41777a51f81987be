/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package bingo

import (
	"math/rand/v2"
	"sync"
)

// Source yields random indexes for DrawNumber.
//
// Intn must return a uniformly distributed value in [0, n) for any n > 0.
type Source interface {
	Intn(n int) int
}

type mathSource struct{}

// NewMathSource returns a Source backed by the runtime's auto-seeded generator.
// Draws only need to be fair, not unpredictable, so crypto/rand is not used.
func NewMathSource() Source {
	return mathSource{}
}

func (mathSource) Intn(n int) int {
	return rand.IntN(n)
}

// FixedSource replays a scripted list of indexes, then returns 0 forever.
// Useful for deterministic draws.
type FixedSource struct {
	mu      sync.Mutex
	indexes []int
}

func NewFixedSource(indexes ...int) *FixedSource {
	return &FixedSource{indexes: indexes}
}

func (f *FixedSource) Intn(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.indexes) == 0 {
		return 0
	}

	i := f.indexes[0]
	f.indexes = f.indexes[1:]

	if i < 0 || i >= n {
		return 0
	}

	return i
}
