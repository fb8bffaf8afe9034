package engine

import "sync/atomic"

// sequence stamps engine events with a strictly increasing logical number.
//
// Observers see events from concurrent save and load tasks interleaved; the
// sequence number is the only ordering they should rely on. Wall-clock time
// is never used for ordering, so traces from a fake clock and a real one
// compare equal.
type sequence struct {
	n atomic.Int64
}

// next returns the next sequence number. The first call returns 1.
func (s *sequence) next() int64 {
	return s.n.Add(1)
}
