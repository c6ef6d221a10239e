package valuebits_test

import (
	"math"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomasim/valuebits"
)

func TestValuebits(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Valuebits Suite")
}

var _ = Describe("integer widths", func() {
	It("round-trips a positive word", func() {
		bits := valuebits.WordBitsFromValue(42)
		Expect(valuebits.ValueFromWordBits(bits)).To(Equal(42.0))
	})

	It("sign-extends a negative word through truncation and back", func() {
		bits := valuebits.WordBitsFromValue(-1)
		Expect(bits).To(Equal(uint64(0xFFFFFFFF)))
		Expect(valuebits.ValueFromWordBits(bits)).To(Equal(-1.0))
	})

	It("round-trips a doubleword", func() {
		bits := valuebits.DoubleBitsFromValue(-12345)
		Expect(valuebits.ValueFromDoubleBits(bits)).To(Equal(-12345.0))
	})
})

var _ = Describe("floating-point widths", func() {
	It("round-trips a single-precision value within float32 precision", func() {
		bits := valuebits.SingleBitsFromValue(1.5)
		Expect(bits).To(Equal(uint64(math.Float32bits(1.5))))
		Expect(valuebits.ValueFromSingleBits(bits)).To(Equal(1.5))
	})

	It("round-trips a double-precision value exactly", func() {
		bits := valuebits.DoubleFPBitsFromValue(3.14159265358979)
		Expect(valuebits.ValueFromDoubleFPBits(bits)).To(Equal(3.14159265358979))
	})
})
