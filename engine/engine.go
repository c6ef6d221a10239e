// Package engine implements the cycle-accurate engine driving a
// Tomasulo core: the per-cycle phase orchestrator that owns the cycle
// counter, the program cursor, per-instruction timestamps, branch
// flush, and termination detection.
package engine

import (
	"errors"
	"fmt"

	"github.com/sarchlab/tomasim/cache"
	"github.com/sarchlab/tomasim/cdb"
	"github.com/sarchlab/tomasim/execunit"
	"github.com/sarchlab/tomasim/insts"
	"github.com/sarchlab/tomasim/issue"
	"github.com/sarchlab/tomasim/memsys"
	"github.com/sarchlab/tomasim/regfile"
	"github.com/sarchlab/tomasim/station"
	"github.com/sarchlab/tomasim/valuebits"
)

// ErrNonTerminating is returned by Run when the cycle count exceeds
// the configured safeguard without the program reaching termination.
// This is a test-harness convenience, not a behavioral guarantee of
// the core itself.
var ErrNonTerminating = errors.New("engine: exceeded max cycle safeguard without terminating")

// LogEntry is one structured record in the engine's append-only log
// stream, polled by callers rather than written to a logging library
// directly; see cmd/tomasim for the optional verbose console echo of
// this same stream.
type LogEntry struct {
	Cycle   int32
	Message string
}

// Config bundles the station, execution-latency, memory and LSB
// configuration needed to build an Engine, plus the program and any
// register preloads.
type Config struct {
	StationCounts   station.Counts
	ExecLatencies   execunit.Config
	MemConfig       memsys.Config
	CacheConfig     cache.Config
	LSBMaxSize      int
	Program         []insts.Instruction
	RegisterPreload map[insts.RegName]float64
}

// Engine orchestrates one cycle-accurate run of the Tomasulo core.
type Engine struct {
	pool  *station.Pool
	regs  *regfile.File
	mem   *memsys.System
	bus   *cdb.Bus
	exec  *execunit.Unit
	issue *issue.Unit

	program []insts.Instruction
	cursor  int
	cycle   int32

	log []LogEntry
}

// New builds an Engine from Config, preloading any initial register
// values.
func New(cfg Config) (*Engine, error) {
	pool, err := station.NewPool(cfg.StationCounts)
	if err != nil {
		return nil, err
	}
	regs := regfile.New()
	for name, v := range cfg.RegisterPreload {
		if err := regs.Preload(name, v); err != nil {
			return nil, fmt.Errorf("engine: preloading %s: %w", name, err)
		}
	}
	mem, err := memsys.New(cfg.MemConfig, cfg.CacheConfig, cfg.LSBMaxSize)
	if err != nil {
		return nil, err
	}
	bus := cdb.New()
	e := &Engine{
		pool:    pool,
		regs:    regs,
		mem:     mem,
		bus:     bus,
		issue:   issue.New(pool, regs, mem),
		program: append([]insts.Instruction(nil), cfg.Program...),
	}
	e.exec = execunit.New(cfg.ExecLatencies, pool, bus, func(msg string) { e.logf("%s", msg) })
	e.exec.SetTimestampHooks(e.stampExecStart, e.stampExecEnd)
	e.issue.SetDispatchHook(e.stampExecStart)
	return e, nil
}

func (e *Engine) stampExecStart(instrID uint32, cycle int32) {
	if instr := e.instructionByID(instrID); instr != nil && instr.ExecStart < 0 {
		instr.ExecStart = cycle
	}
}

func (e *Engine) stampExecEnd(instrID uint32, cycle int32) {
	if instr := e.instructionByID(instrID); instr != nil {
		instr.ExecEnd = cycle
	}
}

// Registers returns the register file, for polling final/intermediate
// state.
func (e *Engine) Registers() *regfile.File {
	return e.regs
}

// Memory returns the memory system, for polling cache stats and
// load/store buffer state and for preloading byte memory. Stores held
// in dirty cache lines are not yet reflected in the backing byte
// memory.
func (e *Engine) Memory() *memsys.System {
	return e.mem
}

// Stations returns the station pool, for per-cycle observability.
func (e *Engine) Stations() *station.Pool {
	return e.pool
}

// Program returns the current instruction stream, including every
// timestamp the engine has stamped so far.
func (e *Engine) Program() []insts.Instruction {
	return e.program
}

// Cycle returns the number of completed cycles.
func (e *Engine) Cycle() int32 {
	return e.cycle
}

// Log returns the structured log stream accumulated so far.
func (e *Engine) Log() []LogEntry {
	return e.log
}

func (e *Engine) logf(format string, args ...any) {
	e.log = append(e.log, LogEntry{Cycle: e.cycle, Message: fmt.Sprintf(format, args...)})
}

// Done reports whether the run has terminated: the program cursor is
// past the end, every issued instruction has a write cycle, every
// station is idle, and the load/store buffer is empty.
func (e *Engine) Done() bool {
	if e.cursor < len(e.program) {
		return false
	}
	for _, instr := range e.program {
		if instr.IssueCycle >= 0 && instr.WriteCycle < 0 {
			return false
		}
	}
	if e.pool.AnyBusy() {
		return false
	}
	return len(e.mem.BufferSnapshot()) == 0
}

// Run advances the engine one cycle at a time until Done or until
// maxCycles is exceeded, in which case it returns ErrNonTerminating.
func (e *Engine) Run(maxCycles int32) (int32, error) {
	for !e.Done() {
		if e.cycle >= maxCycles {
			return e.cycle, ErrNonTerminating
		}
		if err := e.Tick(); err != nil {
			return e.cycle, err
		}
	}
	return e.cycle, nil
}

// Tick advances the engine by exactly one cycle, running the four
// phases in strict order: Write, Execute, Memory (plus the deferred
// dispatch re-check it enables), then Issue.
func (e *Engine) Tick() error {
	e.cycle++
	c := e.cycle

	if err := e.writePhase(c); err != nil {
		return err
	}
	e.exec.Tick(c)
	if err := e.memoryPhase(c); err != nil {
		return err
	}
	if err := e.issue.RecheckDispatch(c); err != nil {
		return err
	}
	if err := e.issuePhase(c); err != nil {
		return err
	}
	return nil
}

// writePhase selects at most one ready CDB request and applies it,
// resolving a branch and stamping write_cycle if the producer was one.
func (e *Engine) writePhase(c int32) error {
	req, ok := e.bus.Select(c, e.regs, e.pool)
	if !ok {
		return nil
	}

	instr := e.instructionByID(req.StationInstruction)
	if instr != nil {
		instr.WriteCycle = c
	}

	if req.Op.IsBranch() && instr != nil {
		e.resolveBranch(instr, req)
	}
	return nil
}

// memoryPhase ticks the memory system and, for each completed op,
// either enqueues a load's CDB broadcast or finalizes a store's
// timestamps and releases its station directly: stores finalize
// silently, with no value to broadcast.
func (e *Engine) memoryPhase(c int32) error {
	completed, err := e.mem.Tick()
	if err != nil {
		return err
	}

	for _, op := range completed {
		s := e.pool.Lookup(op.StationName)
		if s == nil {
			continue
		}
		if op.IsLoad {
			if instr := e.instructionByID(s.Instruction); instr != nil {
				instr.ExecEnd = c
			}
			value := valueFromBits(s.Op, op.Value)
			e.bus.Enqueue(cdb.BroadcastRequest{
				ProducingStation:   s.Name,
				ResultValue:        value,
				DestReg:            s.Dest,
				Op:                 s.Op,
				ReadyCycle:         c + 1,
				StationInstruction: s.Instruction,
			})
			continue
		}

		if instr := e.instructionByID(s.Instruction); instr != nil {
			instr.ExecEnd = c
			instr.WriteCycle = c
		}
		e.pool.Release(s.Name)
	}
	return nil
}

// issuePhase attempts to issue the instruction at the program cursor.
// A stall (issued == false, err == nil) leaves the cursor untouched.
func (e *Engine) issuePhase(c int32) error {
	if e.cursor >= len(e.program) {
		return nil
	}
	instr := &e.program[e.cursor]
	issued, err := e.issue.TryIssue(instr, c)
	if err != nil {
		return fmt.Errorf("engine: issuing instruction %d at cycle %d: %w", instr.ID, c, err)
	}
	if issued {
		e.cursor++
	}
	return nil
}

// resolveBranch evaluates the branch condition from the current
// register values, flushing post-branch state on a taken branch.
func (e *Engine) resolveBranch(instr *insts.Instruction, req cdb.BroadcastRequest) {
	defer e.issue.ResolveBranch()

	vj, errJ := e.regs.ReadValue(instr.Src1)
	vk, errK := e.regs.ReadValue(instr.Src2)
	if errJ != nil || errK != nil {
		e.logf("branch at instruction %d: source register still pending at resolution", instr.ID)
		return
	}

	taken := false
	switch instr.Op {
	case insts.OpBEQ:
		taken = vj == vk
	case insts.OpBNE:
		taken = vj != vk
	}
	if !taken {
		return
	}

	e.flushAfter(instr.ID)
	e.cursor = int(instr.Immediate)
}

// flushAfter clears the reservation station of every instruction with
// ID strictly greater than branchID. This does not roll back any
// register renames a flushed instruction may have made.
func (e *Engine) flushAfter(branchID uint32) {
	e.pool.ForEachBusy(func(s *station.Station) {
		if s.Instruction > branchID {
			e.pool.Release(s.Name)
		}
	})
}

// instructionByID returns the instruction with the given program-order
// ID. Program construction guarantees ID == index in e.program.
func (e *Engine) instructionByID(id uint32) *insts.Instruction {
	if int(id) >= len(e.program) {
		return nil
	}
	return &e.program[id]
}

// valueFromBits converts a completed load's raw bits into the float64
// a register holds, per the opcode's width and type (integer
// sign-extend vs IEEE-754 reinterpretation).
func valueFromBits(op insts.OpCode, bits uint64) float64 {
	switch op {
	case insts.OpLW:
		return valuebits.ValueFromWordBits(bits)
	case insts.OpLD:
		return valuebits.ValueFromDoubleBits(bits)
	case insts.OpLS:
		return valuebits.ValueFromSingleBits(bits)
	case insts.OpLDouble:
		return valuebits.ValueFromDoubleFPBits(bits)
	default:
		return 0
	}
}
