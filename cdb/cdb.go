// Package cdb implements the Common Data Bus and its arbiter: a queue
// of pending broadcast requests keyed by ready-cycle, with FCFS
// selection of at most one per cycle, and the broadcast semantics that
// apply a selected request to the register file and every busy
// reservation station.
//
// A listener/observer pattern is unnecessary here: Select collapses
// straight into a direct call against the register file and station
// pool, rather than firing events to registered observers. There is a
// single producer (whichever component enqueues) and a single
// consumer (the engine's Write phase) per cycle.
package cdb

import (
	"github.com/sarchlab/tomasim/insts"
	"github.com/sarchlab/tomasim/regfile"
	"github.com/sarchlab/tomasim/station"
)

// BroadcastRequest is a pending CDB broadcast.
type BroadcastRequest struct {
	ProducingStation string
	ResultValue      float64
	DestReg          insts.RegName
	Op               insts.OpCode
	ReadyCycle       int32

	// StationInstruction is the program-order ID of the instruction
	// bound to the producing station, so the engine can stamp
	// timestamps and resolve branches without a second station lookup
	// once the request has fired (the station may already be released
	// by the time a caller wants this).
	StationInstruction uint32
}

// Bus holds pending broadcast requests and arbitrates them.
type Bus struct {
	pending []BroadcastRequest
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Enqueue adds a request to the pending queue, in FCFS order.
func (b *Bus) Enqueue(req BroadcastRequest) {
	b.pending = append(b.pending, req)
}

// Pending returns the number of requests awaiting arbitration.
func (b *Bus) Pending() int {
	return len(b.pending)
}

// Select partitions out requests with ReadyCycle <= cycle and fires
// the earliest-enqueued one (FCFS among ties), applying its broadcast
// semantics against regs and pool. At most one request fires per
// call. The rest (including any eligible-but-not-selected requests)
// remain queued for a future call. Returns the fired request and true
// if one was selected, or the zero value and false otherwise.
//
// If the producing station is no longer busy — because a taken
// branch flushed it before this request could fire — the request is
// dropped without touching the register file or any station. Checking
// busy-ness at selection time has the same effect as a separate purge
// pass triggered when a branch flushes a station, with less
// bookkeeping.
func (b *Bus) Select(cycle int32, regs *regfile.File, pool *station.Pool) (BroadcastRequest, bool) {
	selectedIdx := -1
	for i, req := range b.pending {
		if req.ReadyCycle <= cycle {
			selectedIdx = i
			break
		}
	}
	if selectedIdx == -1 {
		return BroadcastRequest{}, false
	}

	req := b.pending[selectedIdx]
	b.pending = append(b.pending[:selectedIdx], b.pending[selectedIdx+1:]...)

	producer := pool.Lookup(req.ProducingStation)
	if producer == nil || !producer.Busy {
		// Flushed: drop the broadcast entirely.
		return req, true
	}

	applyBroadcast(cycle, req, regs, pool)
	pool.Release(req.ProducingStation)
	return req, true
}

// applyBroadcast implements the register-write and operand-forwarding
// steps of a CDB broadcast. Any station that becomes ready as a result
// of this forward has its ReadyCycle stamped to cycle, so the
// execution unit won't start it until cycle+1.
func applyBroadcast(cycle int32, req BroadcastRequest, regs *regfile.File, pool *station.Pool) {
	if req.DestReg != "" {
		status, err := regs.Status(req.DestReg)
		if err == nil {
			switch {
			case status == req.ProducingStation:
				regs.WriteFromCDB(req.ProducingStation, req.ResultValue)
			case status == "":
				// Degenerate case: register has no pending producer
				// recorded, but write the value anyway.
				_ = regs.Preload(req.DestReg, req.ResultValue)
			default:
				// A later issuer renamed DestReg to a different
				// producer; this broadcast is superseded (WAW guard).
			}
		}
	}

	pool.ForEachBusy(func(s *station.Station) {
		forwarded := false
		if s.Qj == req.ProducingStation {
			s.SetVj(req.ResultValue)
			forwarded = true
		}
		if s.Qk == req.ProducingStation {
			s.SetVk(req.ResultValue)
			forwarded = true
		}
		if forwarded && s.Ready() {
			s.ReadyCycle = cycle
		}
	})
}
