// Package execunit implements the execution unit: per-station latency
// countdowns for compute ops (memory ops execute inside memsys).
// Execution starts one cycle after a station becomes ready and
// produces a broadcast request on completion.
package execunit

import (
	"errors"
	"fmt"

	"github.com/sarchlab/tomasim/cdb"
	"github.com/sarchlab/tomasim/insts"
	"github.com/sarchlab/tomasim/station"
)

// ErrUnconfiguredLatency is logged (not returned as fatal to the
// engine) when a station becomes ready for an opcode with no
// configured latency; the station simply never starts, which the
// caller must treat as a fatal misconfiguration in tests.
var ErrUnconfiguredLatency = errors.New("execunit: no latency configured for opcode")

// Config maps opcodes to their execution latency in cycles. Every
// compute opcode that may appear in the program must have an entry.
type Config map[insts.OpCode]int32

// Unit holds per-station execution timers and produces broadcast
// requests on completion.
type Unit struct {
	config Config
	pool   *station.Pool
	bus    *cdb.Bus
	log    func(string)

	// onStart and onComplete, if set, let the engine mirror a
	// station's execution-start and execution-complete cycle onto its
	// bound instruction's ExecStart/ExecEnd timestamps.
	onStart    func(instrID uint32, cycle int32)
	onComplete func(instrID uint32, cycle int32)
}

// New creates an execution unit over the given station pool and CDB,
// using the given per-opcode latency configuration. log, if non-nil,
// receives warning text (e.g. unconfigured-latency events); nil
// discards warnings.
func New(config Config, pool *station.Pool, bus *cdb.Bus, log func(string)) *Unit {
	if log == nil {
		log = func(string) {}
	}
	return &Unit{config: config, pool: pool, bus: bus, log: log}
}

// SetTimestampHooks installs the callbacks Tick uses to report a
// station's execution-start and execution-complete cycles. Either may
// be nil.
func (u *Unit) SetTimestampHooks(onStart, onComplete func(instrID uint32, cycle int32)) {
	u.onStart = onStart
	u.onComplete = onComplete
}

// Tick advances every running timer by one cycle for the given cycle
// number C:
//  1. Decrement every running timer; a timer reaching 0 produces a
//     BroadcastRequest with ReadyCycle = C+1.
//  2. Start execution on every station that is ready, not yet
//     started, and whose ReadyCycle is strictly less than C — the
//     guard that keeps a station's readiness (whether from issue or
//     from operand forwarding) and its execution start in different
//     cycles.
func (u *Unit) Tick(cycle int32) {
	u.pool.ForEachBusy(func(s *station.Station) {
		if s.Kind == station.KindLoad || s.Kind == station.KindStore {
			return // memory ops execute in memsys, not here.
		}
		if !s.ExecStarted || s.RemainingCycles <= 0 {
			return
		}
		s.RemainingCycles--
		if s.RemainingCycles == 0 {
			u.complete(s, cycle)
		}
	})

	u.pool.ForEachBusy(func(s *station.Station) {
		if s.Kind == station.KindLoad || s.Kind == station.KindStore {
			return
		}
		if !s.Ready() || s.ExecStarted {
			return
		}
		if s.ReadyCycle >= cycle {
			return
		}
		u.start(s, cycle)
	})
}

func (u *Unit) start(s *station.Station, cycle int32) {
	latency, ok := u.config[s.Op]
	if !ok {
		u.log(fmt.Sprintf("execunit: %s: %v for op %s at cycle %d", ErrUnconfiguredLatency, s.Op, s.Op, cycle))
		return
	}
	s.ExecStarted = true
	s.RemainingCycles = latency
	if u.onStart != nil {
		u.onStart(s.Instruction, cycle)
	}
}

// complete computes the result for a finished station and enqueues
// its CDB broadcast request. Branches carry a token result (0) and no
// destination register; resolving the branch condition and flushing
// is the engine's job, done when this broadcast is selected off the
// bus.
func (u *Unit) complete(s *station.Station, cycle int32) {
	result := u.compute(s)
	if u.onComplete != nil {
		u.onComplete(s.Instruction, cycle)
	}

	u.bus.Enqueue(cdb.BroadcastRequest{
		ProducingStation:   s.Name,
		ResultValue:        result,
		DestReg:            s.Dest,
		Op:                 s.Op,
		ReadyCycle:         cycle + 1,
		StationInstruction: s.Instruction,
	})
}

// compute evaluates ADD/SUB/MUL/DIV (division by zero logs and
// yields 0.0) and DADDI/DSUBI. Branch comparisons are deferred to
// branch resolution in the engine.
func (u *Unit) compute(s *station.Station) float64 {
	vj, vk := deref(s.Vj), deref(s.Vk)

	switch s.Op {
	case insts.OpADDS, insts.OpADDD:
		return vj + vk
	case insts.OpSUBS, insts.OpSUBD:
		return vj - vk
	case insts.OpMULS, insts.OpMULD:
		return vj * vk
	case insts.OpDIVS, insts.OpDIVD:
		if vk == 0 {
			u.log(fmt.Sprintf("execunit: division by zero at station %s", s.Name))
			return 0.0
		}
		return vj / vk
	case insts.OpDADDI:
		return vj + float64(derefInt(s.A))
	case insts.OpDSUBI:
		return vj - float64(derefInt(s.A))
	case insts.OpBEQ, insts.OpBNE:
		return 0.0
	default:
		return 0.0
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefInt(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}
