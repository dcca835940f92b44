// Package idpool allocates and recycles the 16-bit connection ids handed
// out to newly accepted connections (spec component F).
package idpool

import (
	"sort"

	"github.com/pkg/errors"
)

// ErrOutOfIDs is returned by Allocate when the id space [1, 65535] is
// entirely in use.
var ErrOutOfIDs = errors.New("idpool: out of connection ids")

// Allocator hands out connection ids starting at 1 (0 is reserved for
// connectionless datagrams) and recycles freed ones before minting new
// ones.
type Allocator struct {
	highWater uint16
	free      []uint16 // kept sorted ascending
}

// New returns an empty allocator.
func New() *Allocator {
	return &Allocator{}
}

// Allocate returns the largest recycled id if any are free, and otherwise
// advances the high-water mark and returns it.
func (a *Allocator) Allocate() (uint16, error) {
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		return id, nil
	}
	if a.highWater >= 65535 {
		return 0, ErrOutOfIDs
	}
	a.highWater++
	return a.highWater, nil
}

// Free releases id back to the pool. If id is the current high-water
// mark it is retired outright (and any newly-exposed trailing free ids
// are coalesced away too); otherwise it is inserted into the sorted free
// list for future reuse.
func (a *Allocator) Free(id uint16) {
	if id == a.highWater {
		a.highWater--
		for len(a.free) > 0 && a.free[len(a.free)-1] == a.highWater {
			a.free = a.free[:len(a.free)-1]
			a.highWater--
		}
		return
	}

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i] >= id })
	a.free = append(a.free, 0)
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = id
}
