package engine

import "sync/atomic"

// sequencer stamps local edits with strictly increasing numbers. A flush
// remembers the number of each edit it wrote, so an edit made while the
// flush was in flight is never mistaken for a flushed one.
//
// Thread-safety: sequencer is safe for concurrent use (atomic operations).
type sequencer struct {
	n atomic.Uint64
}

// next returns the next sequence number. The first call returns 1.
func (s *sequencer) next() uint64 {
	return s.n.Add(1)
}

// current returns the last number handed out.
func (s *sequencer) current() uint64 {
	return s.n.Load()
}
