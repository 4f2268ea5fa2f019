// Package sequence hands out process-wide order ids.
package sequence

import "sync/atomic"

// Sequence generates strictly increasing ids. The zero value starts at 0.
type Sequence struct {
	next atomic.Uint64
}

// New creates a sequence whose first id is start.
func New(start uint64) *Sequence {
	s := &Sequence{}
	s.next.Store(start)
	return s
}

// Next returns the next id. Safe for concurrent use.
func (s *Sequence) Next() uint64 {
	return s.next.Add(1) - 1
}

// Peek returns the id the next call to Next will hand out.
func (s *Sequence) Peek() uint64 {
	return s.next.Load()
}
