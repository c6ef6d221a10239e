// Package config loads and validates the user-supplied configuration
// the engine needs beyond the instruction stream itself: station
// counts per kind, per-opcode execution latencies, cache geometry, and
// memory base latencies.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/tomasim/cache"
	"github.com/sarchlab/tomasim/execunit"
	"github.com/sarchlab/tomasim/insts"
	"github.com/sarchlab/tomasim/memsys"
	"github.com/sarchlab/tomasim/station"
)

// MemorySize is the fixed byte-memory size: a 1 MiB flat address
// space, not user-configurable.
const MemorySize = 1 << 20

// Config is the complete user-supplied configuration for one engine
// run, excluding the instruction stream and register preloads (those
// arrive from the program loader, not this file).
type Config struct {
	Stations StationCounts `json:"stations"`
	Latency  Latency       `json:"latency"`
	Cache    CacheGeometry `json:"cache"`
	LSBSize  int           `json:"lsb_size"`
}

// StationCounts mirrors station.Counts with JSON tags.
type StationCounts struct {
	FPAdd  int `json:"fp_add"`
	FPMul  int `json:"fp_mul"`
	FPDiv  int `json:"fp_div"`
	IntAdd int `json:"int_add"`
	Load   int `json:"load"`
	Store  int `json:"store"`
	Branch int `json:"branch"`
}

// Latency holds per-opcode execution latencies plus the memory
// system's base latencies on top of cache hit/miss classification.
type Latency struct {
	ADDS             int32 `json:"add_s"`
	SUBS             int32 `json:"sub_s"`
	MULS             int32 `json:"mul_s"`
	DIVS             int32 `json:"div_s"`
	ADDD             int32 `json:"add_d"`
	SUBD             int32 `json:"sub_d"`
	MULD             int32 `json:"mul_d"`
	DIVD             int32 `json:"div_d"`
	DADDI            int32 `json:"daddi"`
	DSUBI            int32 `json:"dsubi"`
	Branch           int32 `json:"branch"`
	LoadBaseLatency  int   `json:"load_base_latency"`
	StoreBaseLatency int   `json:"store_base_latency"`
}

// CacheGeometry mirrors cache.Config with JSON tags.
type CacheGeometry struct {
	SizeBytes         int `json:"size_bytes"`
	BlockSizeBytes    int `json:"block_size_bytes"`
	HitLatencyCycles  int `json:"hit_latency_cycles"`
	MissPenaltyCycles int `json:"miss_penalty_cycles"`
}

// Default returns a small but complete configuration: a handful of
// stations per kind, a 256-byte direct-mapped cache with 16-byte
// blocks, a 4-entry LSB, and representative arithmetic latencies. Real
// configurations are expected to override every field.
func Default() *Config {
	return &Config{
		Stations: StationCounts{FPAdd: 3, FPMul: 2, FPDiv: 2, IntAdd: 3, Load: 3, Store: 3, Branch: 1},
		Latency: Latency{
			ADDS: 2, SUBS: 2, MULS: 10, DIVS: 40,
			ADDD: 2, SUBD: 2, MULD: 10, DIVD: 40,
			DADDI: 1, DSUBI: 1, Branch: 1,
			LoadBaseLatency: 1, StoreBaseLatency: 1,
		},
		Cache:   CacheGeometry{SizeBytes: 256, BlockSizeBytes: 16, HitLatencyCycles: 1, MissPenaltyCycles: 20},
		LSBSize: 4,
	}
}

// LoadConfig reads a Config from a JSON file, starting from Default
// and overwriting any fields the file specifies.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return c, nil
}

// SaveConfig writes c to path as indented JSON.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: serializing: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

// ErrInvalidConfiguration is wrapped by Validate's failures.
var ErrInvalidConfiguration = fmt.Errorf("config: invalid configuration")

// Validate checks every station count is >= 1, every arithmetic and
// base memory latency is >= 1, and the LSB and cache geometry are
// non-degenerate. Cache hit/miss latencies may be zero (an idealized
// cache), so those two fields are only checked for negativity.
func (c *Config) Validate() error {
	counts := []struct {
		name string
		n    int
	}{
		{"fp_add", c.Stations.FPAdd}, {"fp_mul", c.Stations.FPMul},
		{"fp_div", c.Stations.FPDiv}, {"int_add", c.Stations.IntAdd},
		{"load", c.Stations.Load}, {"store", c.Stations.Store},
		{"branch", c.Stations.Branch},
	}
	for _, sc := range counts {
		if sc.n < 1 {
			return fmt.Errorf("%w: %s station count must be >= 1, got %d", ErrInvalidConfiguration, sc.name, sc.n)
		}
	}

	latencies := []struct {
		name string
		n    int32
	}{
		{"add_s", c.Latency.ADDS}, {"sub_s", c.Latency.SUBS}, {"mul_s", c.Latency.MULS}, {"div_s", c.Latency.DIVS},
		{"add_d", c.Latency.ADDD}, {"sub_d", c.Latency.SUBD}, {"mul_d", c.Latency.MULD}, {"div_d", c.Latency.DIVD},
		{"daddi", c.Latency.DADDI}, {"dsubi", c.Latency.DSUBI}, {"branch", c.Latency.Branch},
	}
	for _, lc := range latencies {
		if lc.n < 1 {
			return fmt.Errorf("%w: %s latency must be >= 1, got %d", ErrInvalidConfiguration, lc.name, lc.n)
		}
	}
	if c.Latency.LoadBaseLatency < 1 || c.Latency.StoreBaseLatency < 1 {
		return fmt.Errorf("%w: load/store base latency must be >= 1", ErrInvalidConfiguration)
	}

	if c.LSBSize < 1 {
		return fmt.Errorf("%w: lsb_size must be >= 1, got %d", ErrInvalidConfiguration, c.LSBSize)
	}
	if c.Cache.SizeBytes < 1 || c.Cache.BlockSizeBytes < 1 || c.Cache.SizeBytes%c.Cache.BlockSizeBytes != 0 {
		return fmt.Errorf("%w: cache size must be a positive multiple of block size", ErrInvalidConfiguration)
	}
	if c.Cache.HitLatencyCycles < 0 || c.Cache.MissPenaltyCycles < 0 {
		return fmt.Errorf("%w: cache hit/miss latencies must be >= 0", ErrInvalidConfiguration)
	}
	return nil
}

// StationCounts converts to station.Counts.
func (c *Config) StationCounts() station.Counts {
	return station.Counts{
		FPAdd: c.Stations.FPAdd, FPMul: c.Stations.FPMul, FPDiv: c.Stations.FPDiv,
		IntAdd: c.Stations.IntAdd, Load: c.Stations.Load, Store: c.Stations.Store, Branch: c.Stations.Branch,
	}
}

// ExecLatencies converts to an execunit.Config keyed by OpCode.
func (c *Config) ExecLatencies() execunit.Config {
	return execunit.Config{
		insts.OpADDS: c.Latency.ADDS, insts.OpSUBS: c.Latency.SUBS,
		insts.OpMULS: c.Latency.MULS, insts.OpDIVS: c.Latency.DIVS,
		insts.OpADDD: c.Latency.ADDD, insts.OpSUBD: c.Latency.SUBD,
		insts.OpMULD: c.Latency.MULD, insts.OpDIVD: c.Latency.DIVD,
		insts.OpDADDI: c.Latency.DADDI, insts.OpDSUBI: c.Latency.DSUBI,
		insts.OpBEQ: c.Latency.Branch, insts.OpBNE: c.Latency.Branch,
	}
}

// MemConfig converts to memsys.Config.
func (c *Config) MemConfig() memsys.Config {
	return memsys.Config{LoadBaseLatency: c.Latency.LoadBaseLatency, StoreBaseLatency: c.Latency.StoreBaseLatency}
}

// CacheConfig converts to cache.Config.
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		SizeBytes:         c.Cache.SizeBytes,
		BlockSizeBytes:    c.Cache.BlockSizeBytes,
		HitLatencyCycles:  c.Cache.HitLatencyCycles,
		MissPenaltyCycles: c.Cache.MissPenaltyCycles,
	}
}
