package stream

import "math"

// idAllocator hands out non-zero uint32 ids in increasing order, wrapping
// from MaxUint32 back to 1 and skipping ids still in use.
type idAllocator struct {
	last uint32
}

// next returns the first free id after the last one issued. used is the
// number of live ids, which bounds the search.
func (a *idAllocator) next(inUse func(uint32) bool, used int) (uint32, bool) {
	if uint64(used) >= math.MaxUint32 {
		return 0, false
	}
	id := a.last
	for attempts := 0; attempts <= used; attempts++ {
		if id == math.MaxUint32 {
			id = 1
		} else {
			id++
		}
		if !inUse(id) {
			a.last = id
			return id, true
		}
	}
	return 0, false
}
