// Package station implements reservation stations and the typed
// station pool they live in. A Station is the per-functional-unit
// record: captured operand values (Vj/Vk), pending-producer tags
// (Qj/Qk), an immediate/offset/branch-target field (A), and the
// bookkeeping the issue and execution phases need.
//
// The design is a small, flat, fully zero-valued struct with a Clear
// method — a named, poolable, typed station rather than a single
// fixed register per pipeline-stage boundary.
package station

import "github.com/sarchlab/tomasim/insts"

// Kind is the coarse category determining which functional unit or
// buffer a station draws from.
type Kind int

const (
	KindFPAdd Kind = iota
	KindFPMul
	KindFPDiv
	KindIntAdd
	KindLoad
	KindStore
	KindBranch
)

// String returns the station-name prefix for the kind (Add1..AddN,
// Mult1.., Div1.., IntAdd1.., Load1.., Store1.., Branch1..).
func (k Kind) String() string {
	switch k {
	case KindFPAdd:
		return "Add"
	case KindFPMul:
		return "Mult"
	case KindFPDiv:
		return "Div"
	case KindIntAdd:
		return "IntAdd"
	case KindLoad:
		return "Load"
	case KindStore:
		return "Store"
	case KindBranch:
		return "Branch"
	default:
		return "Unknown"
	}
}

// Station is a single reservation station entry.
type Station struct {
	// Name is a stable textual label, e.g. "Add2", "Load1".
	Name string
	Kind Kind

	Busy bool
	Op   insts.OpCode

	// Vj, Vk are captured operand values; nil means not yet captured.
	Vj, Vk *float64
	// Qj, Qk name the station that will produce the pending operand;
	// "" means no pending producer (the slot's V is authoritative, or
	// the slot is unused by this op).
	Qj, Qk string

	// A holds an immediate, memory offset, or branch target index.
	A *int32

	// Dest is the architectural destination register, if any (loads
	// and compute ops; stores and branches have none).
	Dest insts.RegName

	// Instruction is the program-order index of the bound instruction.
	Instruction uint32

	// IssueCycle is -1 until the station is issued into.
	IssueCycle int32

	// ReadyCycle is the cycle in which the station last became ready
	// to execute: the issue cycle if every required operand was
	// already available at issue, or the cycle of the CDB broadcast
	// that supplied its last outstanding operand otherwise. The
	// execution unit requires ReadyCycle < tick-cycle before starting
	// a station, uniformly enforcing the rule that execution can never
	// begin in the same cycle a station became ready — whether that
	// readiness came from issue or from operand forwarding.
	ReadyCycle int32

	ExecStarted     bool
	RemainingCycles int32

	// Dispatched marks a Load/Store station that has already been
	// handed to MemorySystem. Issue-time dispatch happens immediately
	// when the station's memory operands are ready; otherwise the
	// issue unit retries on every later cycle until they are, and
	// Dispatched prevents a double-dispatch.
	Dispatched bool
}

// Clear resets the station to its unused, non-busy state.
func (s *Station) Clear() {
	name, kind := s.Name, s.Kind
	*s = Station{Name: name, Kind: kind, IssueCycle: -1, ReadyCycle: -1}
}

// Ready reports whether the station is eligible to begin execution:
// busy, not already started, and with its required operands captured.
// Loads only need the base address (Qj); stores and compute ops need
// both operands.
func (s *Station) Ready() bool {
	if !s.Busy || s.ExecStarted {
		return false
	}
	if s.Qj != "" {
		return false
	}
	if s.Kind == KindLoad {
		return true
	}
	return s.Qk == ""
}

// SetVj captures a ready operand value into the Vj slot, clearing Qj.
func (s *Station) SetVj(v float64) {
	s.Vj = &v
	s.Qj = ""
}

// SetVk captures a ready operand value into the Vk slot, clearing Qk.
func (s *Station) SetVk(v float64) {
	s.Vk = &v
	s.Qk = ""
}
