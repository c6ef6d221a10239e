package station

import "fmt"

// Counts configures how many stations of each kind the pool holds.
// Every field is required (>= 1); there is no IntMul-equivalent kind
// in this ISA subset.
type Counts struct {
	FPAdd  int
	FPMul  int
	FPDiv  int
	IntAdd int
	Load   int
	Store  int
	Branch int
}

// Pool holds typed banks of reservation stations. Allocation order is
// stable (lowest index first) so station naming is deterministic and
// name-addressable, the same convention regfile uses for register
// names.
type Pool struct {
	counts Counts
	banks  map[Kind][]*Station
}

// NewPool builds a pool with the given station counts. Station names
// follow Add1..AddN, Mult1.., Div1.., IntAdd1.., Load1.., Store1..,
// Branch1...
func NewPool(counts Counts) (*Pool, error) {
	p := &Pool{}
	if err := p.reconfigureLocked(counts); err != nil {
		return nil, err
	}
	return p, nil
}

// Reconfigure re-creates the banks. Allowed only when no station is
// busy (user reconfiguration, engine reset).
func (p *Pool) Reconfigure(counts Counts) error {
	if p.AnyBusy() {
		return fmt.Errorf("station: cannot reconfigure pool while a station is busy")
	}
	return p.reconfigureLocked(counts)
}

func (p *Pool) reconfigureLocked(counts Counts) error {
	kinds := []struct {
		kind Kind
		n    int
	}{
		{KindFPAdd, counts.FPAdd},
		{KindFPMul, counts.FPMul},
		{KindFPDiv, counts.FPDiv},
		{KindIntAdd, counts.IntAdd},
		{KindLoad, counts.Load},
		{KindStore, counts.Store},
		{KindBranch, counts.Branch},
	}

	for _, kc := range kinds {
		if kc.n < 1 {
			return fmt.Errorf("station: %s station count must be >= 1, got %d", kc.kind, kc.n)
		}
	}

	p.counts = counts
	p.banks = make(map[Kind][]*Station, len(kinds))
	for _, kc := range kinds {
		bank := make([]*Station, kc.n)
		for i := range bank {
			bank[i] = &Station{
				Name:       fmt.Sprintf("%s%d", kc.kind, i+1),
				Kind:       kc.kind,
				IssueCycle: -1,
				ReadyCycle: -1,
			}
		}
		p.banks[kc.kind] = bank
	}
	return nil
}

// Counts returns the configured station counts.
func (p *Pool) Counts() Counts {
	return p.counts
}

// Allocate returns the first non-busy station of the given kind, or
// nil if every station of that kind is busy (structural hazard).
func (p *Pool) Allocate(kind Kind) *Station {
	for _, s := range p.banks[kind] {
		if !s.Busy {
			return s
		}
	}
	return nil
}

// Lookup returns the station with the given name, or nil.
func (p *Pool) Lookup(name string) *Station {
	for _, bank := range p.banks {
		for _, s := range bank {
			if s.Name == name {
				return s
			}
		}
	}
	return nil
}

// Release clears all fields of the named station; it is immediately
// reusable by Allocate.
func (p *Pool) Release(name string) {
	if s := p.Lookup(name); s != nil {
		s.Clear()
	}
}

// ForEachBusy calls fn for every currently busy station, across all
// kinds. Iteration order is by kind then index, for determinism.
func (p *Pool) ForEachBusy(fn func(s *Station)) {
	for _, kind := range []Kind{KindFPAdd, KindFPMul, KindFPDiv, KindIntAdd, KindLoad, KindStore, KindBranch} {
		for _, s := range p.banks[kind] {
			if s.Busy {
				fn(s)
			}
		}
	}
}

// AnyBusy reports whether any station in the pool is busy.
func (p *Pool) AnyBusy() bool {
	busy := false
	p.ForEachBusy(func(*Station) { busy = true })
	return busy
}

// Bank returns a snapshot slice of the stations of the given kind, for
// per-station observability.
func (p *Pool) Bank(kind Kind) []*Station {
	bank := p.banks[kind]
	out := make([]*Station, len(bank))
	copy(out, bank)
	return out
}
