// Package valuebits converts between the register file's uniform
// float64 representation (integer registers store integer-valued
// doubles) and the raw memory bit patterns a given opcode's width and
// type imply. MemorySystem and the LSB deal only in raw bits (see
// memsys), so this conversion belongs to whichever layer knows the
// opcode — the issue unit, when building a store's value, and the
// engine, when applying a completed load's bits to a register.
package valuebits

import "math"

// WordBitsFromValue truncates an integer-valued float64 to 32 bits,
// for SW.
func WordBitsFromValue(v float64) uint64 {
	return uint64(uint32(int32(v)))
}

// ValueFromWordBits sign-extends a loaded 32-bit word into the
// integer-valued float64 an LW destination register expects.
func ValueFromWordBits(bits uint64) float64 {
	return float64(int32(uint32(bits)))
}

// DoubleBitsFromValue truncates an integer-valued float64 to 64 bits,
// for SD.
func DoubleBitsFromValue(v float64) uint64 {
	return uint64(int64(v))
}

// ValueFromDoubleBits converts a loaded 64-bit doubleword into the
// integer-valued float64 an LD destination register expects.
func ValueFromDoubleBits(bits uint64) float64 {
	return float64(int64(bits))
}

// SingleBitsFromValue reinterprets a float64 holding an FP-single
// value as IEEE-754 single-precision bits widened into a uint64, for
// S.S.
func SingleBitsFromValue(v float64) uint64 {
	return uint64(math.Float32bits(float32(v)))
}

// ValueFromSingleBits reinterprets loaded 32-bit IEEE-754 single bits
// back into a float64, for L.S.
func ValueFromSingleBits(bits uint64) float64 {
	return float64(math.Float32frombits(uint32(bits)))
}

// DoubleFPBitsFromValue reinterprets a float64 as IEEE-754
// double-precision bits, for S.D.
func DoubleFPBitsFromValue(v float64) uint64 {
	return math.Float64bits(v)
}

// ValueFromDoubleFPBits reinterprets loaded 64-bit IEEE-754 double
// bits back into a float64, for L.D.
func ValueFromDoubleFPBits(bits uint64) float64 {
	return math.Float64frombits(bits)
}
