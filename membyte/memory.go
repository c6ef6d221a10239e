// Package membyte implements the fixed-size byte-addressable memory
// backing the cache and the load/store buffer: a flat byte array with
// big-endian word and doubleword accessors. Memory size is fixed at
// 1 MiB. Big-endian matches this subset's MIPS byte order.
package membyte

import (
	"errors"
	"fmt"
)

// Size is the fixed memory size in bytes (1 MiB).
const Size = 1 << 20

// ErrBadAddress is returned for any access outside [0, Size).
var ErrBadAddress = errors.New("membyte: address out of range")

// Memory is a flat byte-addressable store.
type Memory struct {
	bytes [Size]byte
}

// New creates a zeroed 1 MiB memory.
func New() *Memory {
	return &Memory{}
}

func checkRange(addr uint32, width int) error {
	if addr >= Size || int(addr)+width > Size {
		return fmt.Errorf("%w: addr=0x%x width=%d", ErrBadAddress, addr, width)
	}
	return nil
}

// Read8 reads a single byte.
func (m *Memory) Read8(addr uint32) (byte, error) {
	if err := checkRange(addr, 1); err != nil {
		return 0, err
	}
	return m.bytes[addr], nil
}

// Write8 writes a single byte.
func (m *Memory) Write8(addr uint32, v byte) error {
	if err := checkRange(addr, 1); err != nil {
		return err
	}
	m.bytes[addr] = v
	return nil
}

// Read32 reads a big-endian 4-byte word.
func (m *Memory) Read32(addr uint32) (uint32, error) {
	if err := checkRange(addr, 4); err != nil {
		return 0, err
	}
	b := m.bytes[addr : addr+4]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// Write32 writes a big-endian 4-byte word.
func (m *Memory) Write32(addr uint32, v uint32) error {
	if err := checkRange(addr, 4); err != nil {
		return err
	}
	b := m.bytes[addr : addr+4]
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
	return nil
}

// Read64 reads a big-endian 8-byte doubleword, decomposed into two
// independent word accesses at addr and addr+4.
func (m *Memory) Read64(addr uint32) (uint64, error) {
	hi, err := m.Read32(addr)
	if err != nil {
		return 0, err
	}
	lo, err := m.Read32(addr + 4)
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// Write64 writes a big-endian 8-byte doubleword as two word accesses.
func (m *Memory) Write64(addr uint32, v uint64) error {
	if err := m.Write32(addr, uint32(v>>32)); err != nil {
		return err
	}
	return m.Write32(addr+4, uint32(v))
}

// ReadBlock reads size bytes starting at addr, used by the cache on a
// fill.
func (m *Memory) ReadBlock(addr uint32, size int) ([]byte, error) {
	if err := checkRange(addr, size); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, m.bytes[addr:int(addr)+size])
	return out, nil
}

// WriteBlock writes data starting at addr, used by the cache on a
// dirty-block writeback.
func (m *Memory) WriteBlock(addr uint32, data []byte) error {
	if err := checkRange(addr, len(data)); err != nil {
		return err
	}
	copy(m.bytes[addr:int(addr)+len(data)], data)
	return nil
}
