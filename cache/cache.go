// Package cache implements a direct-mapped, write-back, write-allocate
// data cache. It wraps the akita cache directory
// (github.com/sarchlab/akita/v4/mem/cache) for tag/valid/dirty
// bookkeeping with associativity fixed at 1 — direct-mapped is the
// one-way special case of the same set-associative directory
// abstraction, so the real dependency is reused rather than
// hand-rolling a tag array.
package cache

import (
	"errors"
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/tomasim/membyte"
)

// ErrInvalidConfiguration is returned by New when the geometry is
// invalid (cache size not a positive multiple of block size, or
// negative latencies).
var ErrInvalidConfiguration = errors.New("cache: invalid configuration")

// Config holds the cache geometry and timing parameters.
type Config struct {
	// SizeBytes is the total cache capacity; must be a multiple of
	// BlockSizeBytes.
	SizeBytes int
	// BlockSizeBytes is the cache line size.
	BlockSizeBytes int
	// HitLatencyCycles is the additional latency (>= 0) on a hit.
	HitLatencyCycles int
	// MissPenaltyCycles is the additional latency (>= 0) on a miss,
	// on top of HitLatencyCycles.
	MissPenaltyCycles int
}

// Stats holds cache performance counters, in word-access units (a
// doubleword op counts as two accesses).
type Stats struct {
	Hits   uint64
	Misses uint64
}

// MissRate returns Misses / (Hits + Misses), or 0 if there have been
// no accesses yet.
func (s Stats) MissRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Misses) / float64(total)
}

// CacheSimulator is a direct-mapped, write-back, write-allocate cache
// in front of a membyte.Memory backing store.
type CacheSimulator struct {
	config Config

	numLines  int
	directory *akitacache.DirectoryImpl
	data      [][]byte

	backing *membyte.Memory
	stats   Stats
}

// New creates a cache simulator over the given backing memory.
func New(config Config, backing *membyte.Memory) (*CacheSimulator, error) {
	if config.BlockSizeBytes <= 0 || config.SizeBytes <= 0 || config.SizeBytes%config.BlockSizeBytes != 0 {
		return nil, fmt.Errorf("%w: size=%d block=%d", ErrInvalidConfiguration, config.SizeBytes, config.BlockSizeBytes)
	}
	if config.HitLatencyCycles < 0 || config.MissPenaltyCycles < 0 {
		return nil, fmt.Errorf("%w: negative latency", ErrInvalidConfiguration)
	}

	numLines := config.SizeBytes / config.BlockSizeBytes
	data := make([][]byte, numLines)
	for i := range data {
		data[i] = make([]byte, config.BlockSizeBytes)
	}

	return &CacheSimulator{
		config:   config,
		numLines: numLines,
		directory: akitacache.NewDirectory(
			numLines, 1, config.BlockSizeBytes,
			akitacache.NewLRUVictimFinder(),
		),
		data:    data,
		backing: backing,
	}, nil
}

// Stats returns the current hit/miss counters.
func (c *CacheSimulator) Stats() Stats {
	return c.stats
}

// Config returns the cache's geometry and latency configuration.
func (c *CacheSimulator) Config() Config {
	return c.config
}

func (c *CacheSimulator) blockAddr(addr uint32) uint64 {
	bs := uint64(c.config.BlockSizeBytes)
	return (uint64(addr) / bs) * bs
}

// IsHit is a pure query: it reports whether addr currently hits,
// without mutating LRU state or statistics. Used by MemorySystem to
// set an op's latency at issue time, since the hit/miss outcome is
// frozen for the lifetime of an in-flight memory op rather than
// re-evaluated when it actually commits.
func (c *CacheSimulator) IsHit(addr uint32) bool {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	return block != nil && block.IsValid
}

// IsHitDouble is the pure, doubleword-width counterpart of IsHit: it
// reports a hit only if both 4-byte halves at addr and addr+4 are
// currently resident, matching ReadDouble/WriteDouble's classification.
func (c *CacheSimulator) IsHitDouble(addr uint32) bool {
	return c.IsHit(addr) && c.IsHit(addr+4)
}

// accessLine returns the data slice for the line currently caching
// addr, fetching/evicting on miss as needed. It updates statistics
// and LRU state as a side effect, so callers must only invoke it once
// per logical access.
func (c *CacheSimulator) accessLine(addr uint32) (line []byte, hit bool, err error) {
	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, blockAddr)

	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		return c.data[block.SetID], true, nil
	}

	c.stats.Misses++
	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return nil, false, fmt.Errorf("cache: no victim available for addr=0x%x", addr)
	}
	line = c.data[victim.SetID]

	if victim.IsValid && victim.IsDirty {
		evictedAddr := uint32(victim.Tag)
		if err := c.backing.WriteBlock(evictedAddr, line); err != nil {
			return nil, false, fmt.Errorf("cache: writeback on eviction: %w", err)
		}
	}

	fresh, err := c.backing.ReadBlock(uint32(blockAddr), c.config.BlockSizeBytes)
	if err != nil {
		return nil, false, fmt.Errorf("cache: fill from backing store: %w", err)
	}
	copy(line, fresh)

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)

	return line, false, nil
}

// latencyFor returns the op's latency given its hit/miss outcome.
func (c *CacheSimulator) latencyFor(hit bool) int {
	if hit {
		return c.config.HitLatencyCycles
	}
	return c.config.HitLatencyCycles + c.config.MissPenaltyCycles
}

// LatencyForHit exposes latencyFor's classification rule so
// MemorySystem can compute an op's frozen-at-issue latency from a
// pure IsHit/IsHitDouble query, without performing the (mutating)
// access itself.
func (c *CacheSimulator) LatencyForHit(hit bool) int {
	return c.latencyFor(hit)
}

// ReadWord reads a 4-byte big-endian word through the cache.
// Returns the value, whether it was a hit, and the access latency.
func (c *CacheSimulator) ReadWord(addr uint32) (value uint32, hit bool, latency int, err error) {
	line, hit, err := c.accessLine(addr)
	if err != nil {
		return 0, false, 0, err
	}
	offset := addr % uint32(c.config.BlockSizeBytes)
	b := line[offset : offset+4]
	value = uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return value, hit, c.latencyFor(hit), nil
}

// WriteWord writes a 4-byte big-endian word through the cache,
// allocating on miss and marking the line dirty.
func (c *CacheSimulator) WriteWord(addr uint32, value uint32) (hit bool, latency int, err error) {
	line, hit, err := c.accessLine(addr)
	if err != nil {
		return false, 0, err
	}
	offset := addr % uint32(c.config.BlockSizeBytes)
	b := line[offset : offset+4]
	b[0] = byte(value >> 24)
	b[1] = byte(value >> 16)
	b[2] = byte(value >> 8)
	b[3] = byte(value)

	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil {
		block.IsDirty = true
	}
	return hit, c.latencyFor(hit), nil
}

// ReadDouble reads an 8-byte big-endian doubleword as two independent
// word accesses at addr and addr+4, which may straddle a block
// boundary and hit/miss independently. The combined access is
// classified as a hit only if both halves hit;
// a partial hit is conservatively billed the miss latency, though
// each half still counts individually toward the hit/miss stats.
func (c *CacheSimulator) ReadDouble(addr uint32) (value uint64, hit bool, latency int, err error) {
	hi, hitHi, latHi, err := c.ReadWord(addr)
	if err != nil {
		return 0, false, 0, err
	}
	lo, hitLo, latLo, err := c.ReadWord(addr + 4)
	if err != nil {
		return 0, false, 0, err
	}
	hit = hitHi && hitLo
	if hit {
		latency = latHi
	} else {
		latency = max(latHi, latLo)
	}
	return uint64(hi)<<32 | uint64(lo), hit, latency, nil
}

// WriteDouble writes an 8-byte big-endian doubleword as two
// independent word accesses; see ReadDouble for hit/latency
// classification.
func (c *CacheSimulator) WriteDouble(addr uint32, value uint64) (hit bool, latency int, err error) {
	hitHi, latHi, err := c.WriteWord(addr, uint32(value>>32))
	if err != nil {
		return false, 0, err
	}
	hitLo, latLo, err := c.WriteWord(addr+4, uint32(value))
	if err != nil {
		return false, 0, err
	}
	hit = hitHi && hitLo
	if hit {
		latency = latHi
	} else {
		latency = max(latHi, latLo)
	}
	return hit, latency, nil
}
