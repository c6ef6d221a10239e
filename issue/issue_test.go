package issue_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomasim/cache"
	"github.com/sarchlab/tomasim/insts"
	"github.com/sarchlab/tomasim/issue"
	"github.com/sarchlab/tomasim/memsys"
	"github.com/sarchlab/tomasim/regfile"
	"github.com/sarchlab/tomasim/station"
)

func TestIssue(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Issue Suite")
}

func newFixture() (*issue.Unit, *station.Pool, *regfile.File, *memsys.System) {
	pool, err := station.NewPool(station.Counts{FPAdd: 1, FPMul: 1, FPDiv: 1, IntAdd: 1, Load: 1, Store: 1, Branch: 1})
	Expect(err).NotTo(HaveOccurred())
	regs := regfile.New()
	mem, err := memsys.New(
		memsys.Config{LoadBaseLatency: 1, StoreBaseLatency: 1},
		cache.Config{SizeBytes: 64, BlockSizeBytes: 16, HitLatencyCycles: 1, MissPenaltyCycles: 5},
		2,
	)
	Expect(err).NotTo(HaveOccurred())
	return issue.New(pool, regs, mem), pool, regs, mem
}

var _ = Describe("Unit.TryIssue", func() {
	It("issues a compute op with both operands ready immediately", func() {
		u, pool, regs, _ := newFixture()
		Expect(regs.Preload("F1", 2)).To(Succeed())
		Expect(regs.Preload("F2", 3)).To(Succeed())

		instr := insts.NewInstruction(0, insts.OpADDD)
		instr.Dest, instr.Src1, instr.Src2 = "F3", "F1", "F2"

		issued, err := u.TryIssue(&instr, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(issued).To(BeTrue())

		add1 := pool.Lookup("Add1")
		Expect(add1.Busy).To(BeTrue())
		Expect(*add1.Vj).To(Equal(2.0))
		Expect(*add1.Vk).To(Equal(3.0))
		Expect(add1.ReadyCycle).To(Equal(int32(0)))

		status, _ := regs.Status("F3")
		Expect(status).To(Equal("Add1"))
	})

	It("wires a pending operand's producer tag instead of a value", func() {
		u, pool, regs, _ := newFixture()
		Expect(regs.SetQi("F1", "Mult1")).To(Succeed())
		Expect(regs.Preload("F2", 3)).To(Succeed())

		instr := insts.NewInstruction(0, insts.OpADDD)
		instr.Dest, instr.Src1, instr.Src2 = "F3", "F1", "F2"

		issued, err := u.TryIssue(&instr, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(issued).To(BeTrue())

		add1 := pool.Lookup("Add1")
		Expect(add1.Qj).To(Equal("Mult1"))
		Expect(add1.Vj).To(BeNil())
		Expect(add1.Ready()).To(BeFalse())
	})

	It("stalls when no station of the required kind is free", func() {
		u, _, regs, _ := newFixture()
		Expect(regs.Preload("F1", 1)).To(Succeed())
		Expect(regs.Preload("F2", 1)).To(Succeed())

		first := insts.NewInstruction(0, insts.OpADDD)
		first.Dest, first.Src1, first.Src2 = "F3", "F1", "F2"
		issued, err := u.TryIssue(&first, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(issued).To(BeTrue())

		second := insts.NewInstruction(1, insts.OpADDD)
		second.Dest, second.Src1, second.Src2 = "F4", "F1", "F2"
		issued, err = u.TryIssue(&second, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(issued).To(BeFalse())
	})

	It("stalls behind a pending unresolved branch", func() {
		u, _, regs, _ := newFixture()
		Expect(regs.Preload("R1", 1)).To(Succeed())
		Expect(regs.Preload("R2", 1)).To(Succeed())

		branch := insts.NewInstruction(0, insts.OpBEQ)
		branch.Src1, branch.Src2, branch.Immediate = "R1", "R2", 5
		issued, err := u.TryIssue(&branch, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(issued).To(BeTrue())
		Expect(u.BranchPending()).To(BeTrue())

		next := insts.NewInstruction(1, insts.OpADDD)
		next.Dest, next.Src1, next.Src2 = "F3", "R1", "R2"
		issued, err = u.TryIssue(&next, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(issued).To(BeFalse())

		u.ResolveBranch()
		Expect(u.BranchPending()).To(BeFalse())
	})

	It("dispatches a load to MemorySystem immediately when its base is ready", func() {
		u, pool, regs, mem := newFixture()
		Expect(regs.Preload("R1", 0)).To(Succeed())

		instr := insts.NewInstruction(0, insts.OpLW)
		instr.Dest, instr.BaseReg, instr.Offset = "R2", "R1", 8

		issued, err := u.TryIssue(&instr, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(issued).To(BeTrue())

		load1 := pool.Lookup("Load1")
		Expect(load1.Dispatched).To(BeTrue())
		Expect(mem.BufferSnapshot()).To(HaveLen(1))
		Expect(mem.BufferSnapshot()[0].Address).To(Equal(uint64(8)))
	})

	It("stalls a load when the buffer is full", func() {
		u, _, regs, mem := newFixture()
		Expect(regs.Preload("R1", 0)).To(Succeed())
		_, err := mem.IssueLoad(0, 4, "R9", "filler1")
		Expect(err).NotTo(HaveOccurred())
		_, err = mem.IssueLoad(4, 4, "R9", "filler2")
		Expect(err).NotTo(HaveOccurred())

		instr := insts.NewInstruction(0, insts.OpLW)
		instr.Dest, instr.BaseReg = "R2", "R1"

		issued, err := u.TryIssue(&instr, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(issued).To(BeFalse())
	})

	It("defers dispatch of a store until its data register is ready, then RecheckDispatch picks it up", func() {
		u, pool, regs, mem := newFixture()
		Expect(regs.Preload("R1", 0)).To(Succeed())
		Expect(regs.SetQi("R2", "Mult1")).To(Succeed())

		instr := insts.NewInstruction(0, insts.OpSW)
		instr.Src2, instr.BaseReg, instr.Offset = "R2", "R1", 4

		issued, err := u.TryIssue(&instr, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(issued).To(BeTrue())

		store1 := pool.Lookup("Store1")
		Expect(store1.Dispatched).To(BeFalse())
		Expect(mem.BufferSnapshot()).To(BeEmpty())

		store1.SetVk(77)
		Expect(u.RecheckDispatch(1)).To(Succeed())
		Expect(store1.Dispatched).To(BeTrue())
		Expect(mem.BufferSnapshot()).To(HaveLen(1))
	})

	It("rejects an instruction referencing an unknown register", func() {
		u, _, _, _ := newFixture()
		instr := insts.NewInstruction(0, insts.OpADDD)
		instr.Dest, instr.Src1, instr.Src2 = "F3", "BOGUS", "F2"

		_, err := u.TryIssue(&instr, 0)
		Expect(err).To(HaveOccurred())
	})
})
