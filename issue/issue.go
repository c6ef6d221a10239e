// Package issue implements the in-order issue unit: one instruction
// per cycle, stalling on a structural hazard (no free station of the
// required kind, or a full load/store buffer) or on a pending,
// unresolved branch. Allocation is station-kind-aware across seven
// reservation-station banks plus the load/store buffer.
package issue

import (
	"github.com/sarchlab/tomasim/insts"
	"github.com/sarchlab/tomasim/memsys"
	"github.com/sarchlab/tomasim/regfile"
	"github.com/sarchlab/tomasim/station"
	"github.com/sarchlab/tomasim/valuebits"
)

// Unit is the issue stage. It holds no program cursor of its own; the
// engine owns fetch order and calls TryIssue once per cycle with the
// next unissued instruction.
type Unit struct {
	pool *station.Pool
	regs *regfile.File
	mem  *memsys.System

	// branchPending blocks every subsequent issue once a branch has
	// been issued and before it resolves: this ISA subset issues
	// speculation-free, so the instruction after a branch can't be
	// fetched until the branch's outcome is known.
	branchPending bool

	// onDispatch, if set, reports the cycle a load or store station was
	// handed to MemorySystem, so the engine can stamp the bound
	// instruction's ExecStart.
	onDispatch func(instrID uint32, cycle int32)
}

// New creates an issue unit over the given station pool, register
// file and memory system.
func New(pool *station.Pool, regs *regfile.File, mem *memsys.System) *Unit {
	return &Unit{pool: pool, regs: regs, mem: mem}
}

// SetDispatchHook installs the callback tryDispatch uses to report a
// memory station's hand-off to MemorySystem.
func (u *Unit) SetDispatchHook(fn func(instrID uint32, cycle int32)) {
	u.onDispatch = fn
}

// BranchPending reports whether issue is currently stalled behind an
// unresolved branch.
func (u *Unit) BranchPending() bool {
	return u.branchPending
}

// ResolveBranch clears the pending-branch stall. The engine calls this
// once a branch's CDB broadcast has been selected and its condition
// evaluated, whether or not the branch was taken.
func (u *Unit) ResolveBranch() {
	u.branchPending = false
}

// TryIssue attempts to issue instr at cycle C. It returns issued ==
// false (with a nil error) for any stall condition:
// a pending branch, no free station of the required kind, or — for
// memory ops — a full load/store buffer. The caller must not advance
// its program cursor when issued is false. A non-nil error indicates a
// malformed instruction (e.g. an unknown register name) and is fatal.
func (u *Unit) TryIssue(instr *insts.Instruction, cycle int32) (bool, error) {
	if u.branchPending {
		return false, nil
	}

	kind := kindFor(instr.Op)
	if instr.Op.IsMemory() && u.mem.BufferFull() {
		return false, nil
	}

	s := u.pool.Allocate(kind)
	if s == nil {
		return false, nil
	}

	s.Busy = true
	s.Op = instr.Op
	s.Dest = instr.Dest
	s.Instruction = instr.ID
	s.IssueCycle = cycle

	var err error
	switch {
	case instr.Op.IsBranch():
		err = u.wireOperands(s, instr.Src1, instr.Src2)
		s.A = int32Ptr(instr.Immediate)
	case instr.Op.IsLoad():
		err = u.wireBase(s, instr)
	case instr.Op.IsStore():
		err = u.wireStore(s, instr)
	case instr.Op.IsImmediate():
		err = u.wireOperands(s, instr.Src1, "")
		s.A = int32Ptr(instr.Immediate)
	case instr.Op.IsFPArith():
		err = u.wireOperands(s, instr.Src1, instr.Src2)
	}
	if err != nil {
		s.Clear()
		return false, err
	}

	if s.Dest != "" {
		if err := u.regs.SetQi(s.Dest, s.Name); err != nil {
			s.Clear()
			return false, err
		}
	}

	if s.Ready() {
		s.ReadyCycle = cycle
	}

	if instr.Op.IsMemory() {
		if err := u.tryDispatch(s, cycle); err != nil {
			return false, err
		}
	}

	instr.IssueCycle = cycle
	if instr.Op.IsBranch() {
		u.branchPending = true
	}

	return true, nil
}

// RecheckDispatch re-attempts dispatch to MemorySystem for every
// busy, not-yet-dispatched load or store station: stores commonly
// wait on their data operand, but the same mechanism applies
// symmetrically to a load still waiting on its base register, since
// nothing else ever hands a load to MemorySystem. The engine calls
// this once per cycle, after the Write phase has had a chance to
// forward a newly arrived operand.
func (u *Unit) RecheckDispatch(cycle int32) error {
	for _, s := range u.pool.Bank(station.KindLoad) {
		if s.Busy && !s.Dispatched {
			if err := u.tryDispatch(s, cycle); err != nil {
				return err
			}
		}
	}
	for _, s := range u.pool.Bank(station.KindStore) {
		if s.Busy && !s.Dispatched {
			if err := u.tryDispatch(s, cycle); err != nil {
				return err
			}
		}
	}
	return nil
}

// wireOperands captures Src1 into Vj/Qj and, if non-empty, Src2 into
// Vk/Qk.
func (u *Unit) wireOperands(s *station.Station, src1, src2 insts.RegName) error {
	v, tag, err := u.captureOperand(src1)
	if err != nil {
		return err
	}
	s.Vj, s.Qj = v, tag

	if src2 == "" {
		return nil
	}
	v, tag, err = u.captureOperand(src2)
	if err != nil {
		return err
	}
	s.Vk, s.Qk = v, tag
	return nil
}

// wireBase captures a load's base register into Vj/Qj and its offset
// into A; loads need no second operand.
func (u *Unit) wireBase(s *station.Station, instr *insts.Instruction) error {
	v, tag, err := u.captureOperand(instr.BaseReg)
	if err != nil {
		return err
	}
	s.Vj, s.Qj = v, tag
	s.A = int32Ptr(instr.Offset)
	return nil
}

// wireStore captures a store's base register into Vj/Qj, its offset
// into A, and its data register into Vk/Qk.
func (u *Unit) wireStore(s *station.Station, instr *insts.Instruction) error {
	if err := u.wireBase(s, instr); err != nil {
		return err
	}
	v, tag, err := u.captureOperand(instr.StoreDataReg())
	if err != nil {
		return err
	}
	s.Vk, s.Qk = v, tag
	return nil
}

// captureOperand reads a source register's current status: if ready,
// returns its captured value and no tag; if pending, returns a nil
// value and the producing station's tag.
func (u *Unit) captureOperand(reg insts.RegName) (*float64, string, error) {
	status, err := u.regs.Status(reg)
	if err != nil {
		return nil, "", err
	}
	if status != "" {
		return nil, status, nil
	}
	v, err := u.regs.ReadValue(reg)
	if err != nil {
		return nil, "", err
	}
	return &v, "", nil
}

// tryDispatch hands a load or store station to MemorySystem once its
// address (and, for stores, data) operands are available. A no-op if
// already dispatched or still missing an operand.
func (u *Unit) tryDispatch(s *station.Station, cycle int32) error {
	if s.Dispatched || s.Qj != "" {
		return nil
	}
	width := 4
	if s.Op.IsDoubleWidth() {
		width = 8
	}
	ea := effectiveAddress(deref(s.Vj), s.A)

	switch s.Kind {
	case station.KindLoad:
		if _, err := u.mem.IssueLoad(ea, width, string(s.Dest), s.Name); err != nil {
			return err
		}
	case station.KindStore:
		if s.Qk != "" {
			return nil
		}
		bits := storeBits(s.Op, deref(s.Vk))
		if _, err := u.mem.IssueStore(ea, width, bits, s.Name); err != nil {
			return err
		}
	default:
		return nil
	}
	s.Dispatched = true
	if u.onDispatch != nil {
		u.onDispatch(s.Instruction, cycle)
	}
	return nil
}

func effectiveAddress(base float64, offset *int32) uint64 {
	return uint64(int64(base) + int64(derefInt(offset)))
}

func storeBits(op insts.OpCode, value float64) uint64 {
	switch op {
	case insts.OpSW:
		return valuebits.WordBitsFromValue(value)
	case insts.OpSD:
		return valuebits.DoubleBitsFromValue(value)
	case insts.OpSS:
		return valuebits.SingleBitsFromValue(value)
	case insts.OpSDouble:
		return valuebits.DoubleFPBitsFromValue(value)
	default:
		return 0
	}
}

func kindFor(op insts.OpCode) station.Kind {
	switch {
	case op.IsBranch():
		return station.KindBranch
	case op.IsLoad():
		return station.KindLoad
	case op.IsStore():
		return station.KindStore
	case op.IsImmediate():
		return station.KindIntAdd
	case op == insts.OpMULS, op == insts.OpMULD:
		return station.KindFPMul
	case op == insts.OpDIVS, op == insts.OpDIVD:
		return station.KindFPDiv
	default:
		return station.KindFPAdd
	}
}

func int32Ptr(v int32) *int32 { return &v }

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
