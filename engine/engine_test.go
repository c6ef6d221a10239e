package engine_test

import (
	"math"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomasim/cache"
	"github.com/sarchlab/tomasim/engine"
	"github.com/sarchlab/tomasim/execunit"
	"github.com/sarchlab/tomasim/insts"
	"github.com/sarchlab/tomasim/memsys"
	"github.com/sarchlab/tomasim/program"
	"github.com/sarchlab/tomasim/station"
	"github.com/sarchlab/tomasim/valuebits"
)

func TestEngine(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Engine Suite")
}

func baseConfig() engine.Config {
	return engine.Config{
		StationCounts: station.Counts{FPAdd: 4, FPMul: 2, FPDiv: 2, IntAdd: 2, Load: 2, Store: 2, Branch: 1},
		ExecLatencies: execunit.Config{
			insts.OpADDD:  2,
			insts.OpSUBD:  2,
			insts.OpMULD:  10,
			insts.OpDIVD:  40,
			insts.OpDADDI: 1,
			insts.OpDSUBI: 1,
			insts.OpBEQ:   1,
			insts.OpBNE:   1,
		},
		MemConfig:   memsys.Config{LoadBaseLatency: 2, StoreBaseLatency: 2},
		CacheConfig: cache.Config{SizeBytes: 256, BlockSizeBytes: 16, HitLatencyCycles: 1, MissPenaltyCycles: 10},
		LSBMaxSize:  8,
	}
}

var _ = Describe("Engine end-to-end scenarios", func() {
	It("scenario A: resolves a RAW dependency chain through renaming and forwarding", func() {
		cfg := baseConfig()
		cfg.RegisterPreload = map[insts.RegName]float64{"R2": 1000, "F4": 1.5}
		cfg.Program = program.NewBuilder().
			Load(insts.OpLDouble, "F6", "R2", 0).
			Load(insts.OpLDouble, "F2", "R2", 8).
			Arith(insts.OpMULD, "F0", "F2", "F4").
			Arith(insts.OpSUBD, "F8", "F2", "F6").
			Arith(insts.OpDIVD, "F10", "F0", "F6").
			Arith(insts.OpADDD, "F6", "F8", "F2").
			Store(insts.OpSDouble, "F6", "R2", 8).
			Build()

		eng, err := engine.New(cfg)
		Expect(err).NotTo(HaveOccurred())

		const m1000, m1008 = 3.14, 2.71
		Expect(eng.Memory().Memory().Write64(1000, valuebits.DoubleFPBitsFromValue(m1000))).To(Succeed())
		Expect(eng.Memory().Memory().Write64(1008, valuebits.DoubleFPBitsFromValue(m1008))).To(Succeed())

		_, err = eng.Run(500)
		Expect(err).NotTo(HaveOccurred())

		f2, err := eng.Registers().ReadValue("F2")
		Expect(err).NotTo(HaveOccurred())
		Expect(f2).To(BeNumerically("~", m1008, 1e-9))

		f0, err := eng.Registers().ReadValue("F0")
		Expect(err).NotTo(HaveOccurred())
		Expect(f0).To(BeNumerically("~", m1008*1.5, 1e-9))

		f8, err := eng.Registers().ReadValue("F8")
		Expect(err).NotTo(HaveOccurred())
		Expect(f8).To(BeNumerically("~", m1008-m1000, 1e-9))

		f10, err := eng.Registers().ReadValue("F10")
		Expect(err).NotTo(HaveOccurred())
		Expect(f10).To(BeNumerically("~", f0/m1000, 1e-9))

		f6, err := eng.Registers().ReadValue("F6")
		Expect(err).NotTo(HaveOccurred())
		Expect(f6).To(BeNumerically("~", f8+f2, 1e-9))

		// The store sits in a dirty line of the write-back cache, so read
		// it back through the memory system, not the backing store.
		_, err = eng.Memory().IssueLoad(1008, 8, "", "Probe")
		Expect(err).NotTo(HaveOccurred())
		var bits uint64
		for i := 0; i < 20; i++ {
			ops, err := eng.Memory().Tick()
			Expect(err).NotTo(HaveOccurred())
			if len(ops) > 0 {
				bits = ops[0].Value
				break
			}
		}
		Expect(math.Float64frombits(bits)).To(BeNumerically("~", f6, 1e-9))
	})

	It("scenario B: a second WAW rename wins over the first instruction's broadcast", func() {
		cfg := baseConfig()
		cfg.Program = program.NewBuilder().
			Immediate(insts.OpDADDI, "R1", "R0", 5).
			Immediate(insts.OpDADDI, "R1", "R0", 7).
			Build()

		eng, err := engine.New(cfg)
		Expect(err).NotTo(HaveOccurred())

		_, err = eng.Run(100)
		Expect(err).NotTo(HaveOccurred())

		r1, err := eng.Registers().ReadValue("R1")
		Expect(err).NotTo(HaveOccurred())
		Expect(r1).To(Equal(7.0))
	})

	It("scenario C: a not-taken branch falls through without flushing", func() {
		cfg := baseConfig()
		cfg.Program = program.NewBuilder().
			Immediate(insts.OpDADDI, "R1", "R0", 1).
			Immediate(insts.OpDADDI, "R2", "R0", 1).
			Branch(insts.OpBNE, "R1", "R2", 4).
			Immediate(insts.OpDADDI, "R3", "R0", 9).
			Immediate(insts.OpDADDI, "R4", "R0", 4).
			Build()

		eng, err := engine.New(cfg)
		Expect(err).NotTo(HaveOccurred())

		_, err = eng.Run(100)
		Expect(err).NotTo(HaveOccurred())

		r3, err := eng.Registers().ReadValue("R3")
		Expect(err).NotTo(HaveOccurred())
		Expect(r3).To(Equal(9.0))

		r4, err := eng.Registers().ReadValue("R4")
		Expect(err).NotTo(HaveOccurred())
		Expect(r4).To(Equal(4.0))
	})

	It("scenario D: a taken branch skips the fall-through instruction", func() {
		cfg := baseConfig()
		cfg.Program = program.NewBuilder().
			Immediate(insts.OpDADDI, "R1", "R0", 1).
			Immediate(insts.OpDADDI, "R2", "R0", 2).
			Branch(insts.OpBNE, "R1", "R2", 4).
			Immediate(insts.OpDADDI, "R3", "R0", 9).
			Immediate(insts.OpDADDI, "R4", "R0", 4).
			Build()

		eng, err := engine.New(cfg)
		Expect(err).NotTo(HaveOccurred())

		_, err = eng.Run(100)
		Expect(err).NotTo(HaveOccurred())

		r3, err := eng.Registers().ReadValue("R3")
		Expect(err).NotTo(HaveOccurred())
		Expect(r3).To(Equal(0.0))

		r4, err := eng.Registers().ReadValue("R4")
		Expect(err).NotTo(HaveOccurred())
		Expect(r4).To(Equal(4.0))
	})

	It("scenario E: a load behind an overlapping store observes program order", func() {
		cfg := baseConfig()
		cfg.RegisterPreload = map[insts.RegName]float64{"R2": 100, "F1": 42.0}
		cfg.Program = program.NewBuilder().
			Store(insts.OpSDouble, "F1", "R2", 0).
			Load(insts.OpLDouble, "F3", "R2", 0).
			Build()

		eng, err := engine.New(cfg)
		Expect(err).NotTo(HaveOccurred())

		_, err = eng.Run(100)
		Expect(err).NotTo(HaveOccurred())

		f3, err := eng.Registers().ReadValue("F3")
		Expect(err).NotTo(HaveOccurred())
		Expect(f3).To(Equal(42.0))

		prog := eng.Program()
		Expect(prog[0].ExecEnd).To(BeNumerically(">", 0))
		Expect(prog[1].ExecEnd).To(BeNumerically(">", prog[0].ExecEnd))
	})

	It("scenario F: a repeated access to the same line misses once then hits", func() {
		cfg := baseConfig()
		cfg.RegisterPreload = map[insts.RegName]float64{"R1": 500}
		cfg.Program = program.NewBuilder().
			Load(insts.OpLW, "R2", "R1", 0).
			Load(insts.OpLW, "R3", "R1", 0).
			Build()

		eng, err := engine.New(cfg)
		Expect(err).NotTo(HaveOccurred())

		_, err = eng.Run(100)
		Expect(err).NotTo(HaveOccurred())

		stats := eng.Memory().CacheStats()
		Expect(stats.Misses).To(Equal(uint64(1)))
		Expect(stats.Hits).To(Equal(uint64(1)))
	})
})

var _ = Describe("Engine.Run", func() {
	It("returns ErrNonTerminating when the cycle safeguard is exceeded", func() {
		cfg := baseConfig()
		cfg.Program = program.NewBuilder().
			Immediate(insts.OpDADDI, "R1", "R0", 1).
			Build()

		// A single DADDI needs issue + a one-cycle execution + a CDB
		// broadcast + a write cycle: four cycles minimum, so a
		// three-cycle safeguard always trips first.
		eng, err := engine.New(cfg)
		Expect(err).NotTo(HaveOccurred())

		_, err = eng.Run(3)
		Expect(err).To(MatchError(engine.ErrNonTerminating))
	})
})
