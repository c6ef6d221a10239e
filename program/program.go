// Package program offers small builder helpers for assembling an
// insts.Instruction stream in memory. Assembly parsing with labels and
// directives is out of scope; this package exists only so tests and
// cmd/tomasim can describe a program without hand-writing every
// Instruction field and ID.
package program

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/tomasim/insts"
)

// Builder accumulates instructions, assigning each the next
// monotonic ID.
type Builder struct {
	instrs []insts.Instruction
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// add appends op with the given field values, stamping the next ID.
func (b *Builder) add(op insts.OpCode) *insts.Instruction {
	instr := insts.NewInstruction(uint32(len(b.instrs)), op)
	b.instrs = append(b.instrs, instr)
	return &b.instrs[len(b.instrs)-1]
}

// Arith appends an FP arithmetic instruction (ADD/SUB/MUL/DIV, .S/.D).
func (b *Builder) Arith(op insts.OpCode, dest, src1, src2 insts.RegName) *Builder {
	i := b.add(op)
	i.Dest, i.Src1, i.Src2 = dest, src1, src2
	return b
}

// Immediate appends a DADDI/DSUBI instruction.
func (b *Builder) Immediate(op insts.OpCode, dest, src1 insts.RegName, immediate int32) *Builder {
	i := b.add(op)
	i.Dest, i.Src1, i.Immediate = dest, src1, immediate
	return b
}

// Load appends a memory load (LW/LD/L.S/L.D).
func (b *Builder) Load(op insts.OpCode, dest, base insts.RegName, offset int32) *Builder {
	i := b.add(op)
	i.Dest, i.BaseReg, i.Offset = dest, base, offset
	return b
}

// Store appends a memory store (SW/SD/S.S/S.D); src is the register
// whose value is written to memory.
func (b *Builder) Store(op insts.OpCode, src, base insts.RegName, offset int32) *Builder {
	i := b.add(op)
	i.Src2, i.BaseReg, i.Offset = src, base, offset
	return b
}

// Branch appends a BEQ/BNE instruction. target is the pre-resolved
// instruction index to jump to when taken.
func (b *Builder) Branch(op insts.OpCode, src1, src2 insts.RegName, target int32) *Builder {
	i := b.add(op)
	i.Src1, i.Src2, i.Immediate = src1, src2, target
	return b
}

// Build returns the assembled instruction stream.
func (b *Builder) Build() []insts.Instruction {
	return append([]insts.Instruction(nil), b.instrs...)
}

// jsonInstr is the on-disk row shape for LoadJSON: mnemonics instead
// of OpCode ints, and a separate Target field for the branch-target
// instruction index (stored into Instruction.Immediate).
type jsonInstr struct {
	Op        string        `json:"op"`
	Dest      insts.RegName `json:"dest,omitempty"`
	Src1      insts.RegName `json:"src1,omitempty"`
	Src2      insts.RegName `json:"src2,omitempty"`
	Base      insts.RegName `json:"base,omitempty"`
	Offset    int32         `json:"offset,omitempty"`
	Immediate int32         `json:"immediate,omitempty"`
	Target    int32         `json:"target,omitempty"`
}

// LoadJSON reads a program as a JSON array of rows shaped like
// jsonInstr: a plain textual format, not a real assembler with labels
// or directives. Branch targets must already be resolved to
// instruction indices: the engine jumps its program cursor straight to
// a taken branch's target.
func LoadJSON(path string) ([]insts.Instruction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("program: reading %s: %w", path, err)
	}
	var rows []jsonInstr
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("program: parsing %s: %w", path, err)
	}

	b := NewBuilder()
	for i, row := range rows {
		op, err := insts.ParseOpCode(row.Op)
		if err != nil {
			return nil, fmt.Errorf("program: instruction %d: %w", i, err)
		}
		switch {
		case op.IsBranch():
			b.Branch(op, row.Src1, row.Src2, row.Target)
		case op.IsLoad():
			b.Load(op, row.Dest, row.Base, row.Offset)
		case op.IsStore():
			b.Store(op, row.Src2, row.Base, row.Offset)
		case op.IsImmediate():
			b.Immediate(op, row.Dest, row.Src1, row.Immediate)
		default:
			b.Arith(op, row.Dest, row.Src1, row.Src2)
		}
	}
	return b.Build(), nil
}
