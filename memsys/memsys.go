// Package memsys composes the byte memory, cache and load/store
// buffer into a single memory system: issue a load or store at an
// already computed effective address (freezing its latency
// classification), and tick the buffer forward one cycle. It is a
// thin composition wrapper exposing a high-level Tick/Stats surface
// over the lower components it owns but doesn't re-implement.
package memsys

import (
	"fmt"

	"github.com/sarchlab/tomasim/cache"
	"github.com/sarchlab/tomasim/lsb"
	"github.com/sarchlab/tomasim/membyte"
)

// Config holds the base latencies added on top of cache hit/miss
// latency for memory ops.
type Config struct {
	LoadBaseLatency  int
	StoreBaseLatency int
}

// System composes ByteMemory, CacheSimulator and the LoadStoreBuffer.
type System struct {
	config Config
	memory *membyte.Memory
	cache  *cache.CacheSimulator
	buffer *lsb.Buffer
}

// New creates a memory system over a fresh 1 MiB memory and the given
// cache and buffer configuration.
func New(config Config, cacheConfig cache.Config, lsbMaxSize int) (*System, error) {
	if config.LoadBaseLatency < 1 || config.StoreBaseLatency < 1 {
		return nil, fmt.Errorf("memsys: load/store base latency must be >= 1")
	}
	memory := membyte.New()
	c, err := cache.New(cacheConfig, memory)
	if err != nil {
		return nil, err
	}
	buf, err := lsb.New(lsbMaxSize)
	if err != nil {
		return nil, err
	}
	return &System{config: config, memory: memory, cache: c, buffer: buf}, nil
}

// Memory returns the backing byte memory, for preloading test data.
// The cache is write-back, so a store whose line is still resident
// (dirty) in the cache is not yet visible here.
func (s *System) Memory() *membyte.Memory {
	return s.memory
}

// CacheStats returns the cache's hit/miss counters.
func (s *System) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// BufferSnapshot returns the LSB's current entries, for observability.
func (s *System) BufferSnapshot() []lsb.Snapshot {
	return s.buffer.Snapshot()
}

// BufferFull reports whether the load/store buffer is at capacity, the
// issue-time structural-hazard precondition for memory ops.
func (s *System) BufferFull() bool {
	return s.buffer.Full()
}

// IssueLoad takes the load's effective address (computed by the
// caller), classifies the access as hit/miss at issue time (frozen for the op's lifetime), and enqueues
// a load entry. Returns the LSB sequence number, or
// ErrStructuralHazard if the buffer is full.
func (s *System) IssueLoad(ea uint64, size int, destReg, station string) (uint64, error) {
	hit := s.isHit(ea, size)
	latency := s.config.LoadBaseLatency + s.cache.LatencyForHit(hit)

	return s.buffer.Add(lsb.Entry{
		Address:         ea,
		Size:            size,
		RemainingCycles: latency,
		IsLoad:          true,
		DestReg:         destReg,
		OwningStation:   station,
	})
}

// IssueStore takes the store's effective address (computed by the
// caller), classifies the access,
// and enqueues a store entry carrying the raw bits to commit. The
// caller (which knows whether the op is an integer or floating-point
// store) is responsible for converting its register value to bits.
func (s *System) IssueStore(ea uint64, size int, bits uint64, station string) (uint64, error) {
	hit := s.isHit(ea, size)
	latency := s.config.StoreBaseLatency + s.cache.LatencyForHit(hit)

	return s.buffer.Add(lsb.Entry{
		Address:         ea,
		Size:            size,
		Value:           bits,
		RemainingCycles: latency,
		IsLoad:          false,
		OwningStation:   station,
	})
}

func (s *System) isHit(ea uint64, size int) bool {
	if size == 8 {
		return s.cache.IsHitDouble(uint32(ea))
	}
	return s.cache.IsHit(uint32(ea))
}

// Tick advances the load/store buffer by one cycle. Both committing
// loads and committing stores are returned: loads carry IsLoad == true
// and the raw bits the caller should broadcast on the CDB; stores
// carry IsLoad == false (their cache write already happened here) and
// exist only so the caller can release the owning station.
func (s *System) Tick() ([]lsb.CompletedOp, error) {
	return s.buffer.Tick(s.commitLoad, s.commitStore)
}

func (s *System) commitLoad(addr uint64, size int) (uint64, error) {
	if size == 8 {
		v, _, _, err := s.cache.ReadDouble(uint32(addr))
		return v, err
	}
	v, _, _, err := s.cache.ReadWord(uint32(addr))
	return uint64(v), err
}

func (s *System) commitStore(addr uint64, size int, bits uint64) error {
	if size == 8 {
		_, _, err := s.cache.WriteDouble(uint32(addr), bits)
		return err
	}
	_, _, err := s.cache.WriteWord(uint32(addr), uint32(bits))
	return err
}
