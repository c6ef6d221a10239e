package insts_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomasim/insts"
)

func TestInsts(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Insts Suite")
}

var _ = Describe("OpCode", func() {
	DescribeTable("String round-trips through ParseOpCode",
		func(op insts.OpCode) {
			mnemonic := op.String()
			parsed, err := insts.ParseOpCode(mnemonic)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(op))
		},
		Entry("DADDI", insts.OpDADDI),
		Entry("LW", insts.OpLW),
		Entry("L.D", insts.OpLDouble),
		Entry("S.S", insts.OpSS),
		Entry("MUL.D", insts.OpMULD),
		Entry("BEQ", insts.OpBEQ),
	)

	It("rejects an unknown mnemonic", func() {
		_, err := insts.ParseOpCode("NOPE")
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("classification predicates",
		func(op insts.OpCode, isLoad, isStore, isBranch, isImmediate, isFPArith, isDouble bool) {
			Expect(op.IsLoad()).To(Equal(isLoad))
			Expect(op.IsStore()).To(Equal(isStore))
			Expect(op.IsBranch()).To(Equal(isBranch))
			Expect(op.IsImmediate()).To(Equal(isImmediate))
			Expect(op.IsFPArith()).To(Equal(isFPArith))
			Expect(op.IsDoubleWidth()).To(Equal(isDouble))
		},
		Entry("LW", insts.OpLW, true, false, false, false, false, false),
		Entry("SD", insts.OpSD, false, true, false, false, false, true),
		Entry("DADDI", insts.OpDADDI, false, false, false, true, false, false),
		Entry("ADD.D", insts.OpADDD, false, false, false, false, true, false),
		Entry("BNE", insts.OpBNE, false, false, true, false, false, false),
	)

	It("IsMemory is true for both loads and stores", func() {
		Expect(insts.OpLW.IsMemory()).To(BeTrue())
		Expect(insts.OpSW.IsMemory()).To(BeTrue())
		Expect(insts.OpADDS.IsMemory()).To(BeFalse())
	})
})

var _ = Describe("NewInstruction", func() {
	It("sets every timestamp to -1", func() {
		instr := insts.NewInstruction(3, insts.OpADDS)
		Expect(instr.ID).To(Equal(uint32(3)))
		Expect(instr.IssueCycle).To(Equal(int32(-1)))
		Expect(instr.ExecStart).To(Equal(int32(-1)))
		Expect(instr.ExecEnd).To(Equal(int32(-1)))
		Expect(instr.WriteCycle).To(Equal(int32(-1)))
	})
})

var _ = Describe("Instruction.StoreDataReg", func() {
	It("returns Src2", func() {
		instr := insts.NewInstruction(0, insts.OpSW)
		instr.Src2 = "R4"
		Expect(instr.StoreDataReg()).To(Equal(insts.RegName("R4")))
	})
})
