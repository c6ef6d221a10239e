// Package main provides the entry point for tomasim, a cycle-accurate
// simulator of Tomasulo's dynamic scheduling algorithm.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/tomasim/config"
	"github.com/sarchlab/tomasim/engine"
	"github.com/sarchlab/tomasim/program"
)

var (
	configPath = flag.String("config", "", "Path to a JSON engine configuration file (defaults built in if omitted)")
	maxCycles  = flag.Int("max-cycles", 10000, "Maximum cycles before the run is declared non-terminating")
	verbose    = flag.Bool("v", false, "Verbose per-cycle log output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: tomasim [options] <program.json>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(programPath string) error {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	instrs, err := program.LoadJSON(programPath)
	if err != nil {
		return fmt.Errorf("loading program: %w", err)
	}

	eng, err := engine.New(engine.Config{
		StationCounts: cfg.StationCounts(),
		ExecLatencies: cfg.ExecLatencies(),
		MemConfig:     cfg.MemConfig(),
		CacheConfig:   cfg.CacheConfig(),
		LSBMaxSize:    cfg.LSBSize,
		Program:       instrs,
	})
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	if *verbose {
		fmt.Printf("Loaded: %s (%d instructions)\n", programPath, len(instrs))
	}

	cycles, runErr := eng.Run(int32(*maxCycles))

	if *verbose {
		for _, entry := range eng.Log() {
			fmt.Printf("[cycle %d] %s\n", entry.Cycle, entry.Message)
		}
	}

	stats := eng.Memory().CacheStats()
	fmt.Printf("Program: %s\n", programPath)
	fmt.Printf("Cycles: %d\n", cycles)
	fmt.Printf("Cache hits/misses: %d/%d (miss rate %.1f%%)\n", stats.Hits, stats.Misses, stats.MissRate()*100)

	if runErr != nil {
		return runErr
	}
	return nil
}
