// Package lsb implements the in-order load/store buffer: an ordered
// FIFO of in-flight memory operations that enforces program-order
// memory consistency through address-overlap stalling. Each entry
// tracks its own remaining-latency countdown, stalling only behind an
// earlier op with an overlapping address range, so several memory ops
// can be in flight at once without violating ordering.
package lsb

import (
	"errors"
	"fmt"
)

// ErrStructuralHazard is returned by Add when the buffer is full. This
// is not a fatal engine error; callers treat it as an issue-stall
// signal for the current cycle.
var ErrStructuralHazard = errors.New("lsb: buffer full")

// Entry is one in-flight memory operation.
type Entry struct {
	// Seq is the monotonic sequence number within the LSB, used for
	// program-order address-overlap checks.
	Seq uint64

	Address uint64
	// Size is the access width in bytes: 4 for word ops, 8 for
	// doubleword ops.
	Size int
	// Value holds the raw bits to store (stores only). Interpreting
	// these bits as an integer or an IEEE float is the issuing
	// layer's job, not the buffer's.
	Value uint64

	RemainingCycles int
	IsLoad          bool

	// OwningStation is the reservation station bound to this entry; the
	// engine needs it to release the station on completion whether or
	// not a CDB broadcast is involved. DestReg is meaningful only for
	// loads, which broadcast their result.
	DestReg       string
	OwningStation string
}

// CompletedOp is produced when an entry's countdown reaches zero.
// Stores carry IsLoad == false and a zero Value/DestReg: the engine
// releases their station directly, since stores commit silently with
// no CDB broadcast.
type CompletedOp struct {
	StationName string
	DestReg     string
	Value       uint64
	IsLoad      bool
}

// Buffer is the ordered load/store queue.
type Buffer struct {
	maxSize int
	entries []*Entry
	nextSeq uint64
}

// New creates an empty buffer with the given capacity.
func New(maxSize int) (*Buffer, error) {
	if maxSize < 1 {
		return nil, fmt.Errorf("lsb: max size must be >= 1, got %d", maxSize)
	}
	return &Buffer{maxSize: maxSize}, nil
}

// Len returns the number of in-flight entries.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Full reports whether the buffer is at capacity.
func (b *Buffer) Full() bool {
	return len(b.entries) >= b.maxSize
}

// Add enqueues a new entry at the tail, assigning it the next
// sequence number. Returns ErrStructuralHazard if the buffer is full.
func (b *Buffer) Add(e Entry) (uint64, error) {
	if b.Full() {
		return 0, ErrStructuralHazard
	}
	e.Seq = b.nextSeq
	b.nextSeq++
	entry := e
	b.entries = append(b.entries, &entry)
	return entry.Seq, nil
}

// Lookup returns the entry with the given sequence number, or nil.
func (b *Buffer) Lookup(seq uint64) *Entry {
	for _, e := range b.entries {
		if e.Seq == seq {
			return e
		}
	}
	return nil
}

// overlaps reports whether two [addr, addr+size) ranges intersect.
func overlaps(addrA uint64, sizeA int, addrB uint64, sizeB int) bool {
	endA := addrA + uint64(sizeA)
	endB := addrB + uint64(sizeB)
	return addrA < endB && addrB < endA
}

// blockedByEarlier reports whether any entry preceding e in program
// order (smaller Seq, still present) has an overlapping address
// range. A load behind a store to an overlapping address must wait
// for the store to commit, since the cache will then hold the
// correct value; two stores to overlapping addresses must also
// commit in order for the same reason.
func (b *Buffer) blockedByEarlier(e *Entry) bool {
	for _, other := range b.entries {
		if other.Seq >= e.Seq {
			continue
		}
		if overlaps(e.Address, e.Size, other.Address, other.Size) {
			return true
		}
	}
	return false
}

// Tick advances every busy entry's countdown by one cycle, in
// sequence order, skipping any entry blocked by an earlier
// overlapping op. Entries reaching zero commit and leave the buffer:
// stores return a station-only CompletedOp with no value; loads return
// a CompletedOp carrying the loaded bits for a CDB broadcast. An entry
// that commits still blocks later overlapping entries for the rest of
// the tick in which it commits. commitLoad
// is invoked for each committing load to fetch the value from the
// cache backing this buffer, and commitStore for each committing
// store to push the stored value; both are supplied by MemorySystem
// so the LSB itself stays free of cache/memory dependencies.
func (b *Buffer) Tick(commitLoad func(addr uint64, size int) (uint64, error), commitStore func(addr uint64, size int, value uint64) error) ([]CompletedOp, error) {
	var completed []CompletedOp
	var remaining []*Entry

	for _, e := range b.entries {
		if b.blockedByEarlier(e) {
			remaining = append(remaining, e)
			continue
		}

		e.RemainingCycles--
		if e.RemainingCycles > 0 {
			remaining = append(remaining, e)
			continue
		}

		if e.IsLoad {
			value, err := commitLoad(e.Address, e.Size)
			if err != nil {
				return completed, err
			}
			completed = append(completed, CompletedOp{
				StationName: e.OwningStation,
				DestReg:     e.DestReg,
				Value:       value,
				IsLoad:      true,
			})
		} else {
			if err := commitStore(e.Address, e.Size, e.Value); err != nil {
				return completed, err
			}
			completed = append(completed, CompletedOp{
				StationName: e.OwningStation,
			})
		}
		// Entry is removed by not appending it to remaining.
	}

	b.entries = remaining
	return completed, nil
}

// Snapshot is a point-in-time view of one entry, for observability.
type Snapshot struct {
	Seq             uint64
	Address         uint64
	RemainingCycles int
	IsLoad          bool
}

// Snapshot returns the current entries in program order.
func (b *Buffer) Snapshot() []Snapshot {
	out := make([]Snapshot, len(b.entries))
	for i, e := range b.entries {
		out[i] = Snapshot{Seq: e.Seq, Address: e.Address, RemainingCycles: e.RemainingCycles, IsLoad: e.IsLoad}
	}
	return out
}
