// Package regfile implements the architectural register file and its
// register alias table (RAT). Each register carries a value and an
// optional producer tag (Qi); exactly one is authoritative at a time.
// The RAT is not a separate structure — it is the set of non-empty Qi
// fields, exposed as a map view for observability and invariant
// checks.
package regfile

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/sarchlab/tomasim/insts"
)

// ErrUnknownRegister is returned when a register name doesn't match
// ^[FR]\d+$ with index 0-31.
var ErrUnknownRegister = errors.New("regfile: unknown register")

// ErrRegisterBusy is returned by ReadValue when the register has a
// pending producer (Qi is set).
var ErrRegisterBusy = errors.New("regfile: register busy")

var nameRE = regexp.MustCompile(`^([FR])(\d+)$`)

// register holds one architectural register's state.
type register struct {
	value float64
	qi    string // "" means ready (value is authoritative)
}

// File is the combined integer + floating-point register file plus
// its alias table. F0-F31 and R0-R31 are addressed by RegName.
type File struct {
	regs map[insts.RegName]*register
}

// New creates a register file with all 64 registers at value 0 and no
// pending producers.
func New() *File {
	f := &File{regs: make(map[insts.RegName]*register, 64)}
	for _, class := range []string{"F", "R"} {
		for i := 0; i < 32; i++ {
			f.regs[insts.RegName(fmt.Sprintf("%s%d", class, i))] = &register{}
		}
	}
	return f
}

// validate checks the name matches ^[FR]\d+$ with index 0-31.
func validate(name insts.RegName) error {
	m := nameRE.FindStringSubmatch(string(name))
	if m == nil {
		return fmt.Errorf("%w: %q", ErrUnknownRegister, name)
	}
	// FindStringSubmatch already anchors digits; range is enforced by
	// the map only containing 0-31, checked by lookup.
	return nil
}

func (f *File) get(name insts.RegName) (*register, error) {
	if err := validate(name); err != nil {
		return nil, err
	}
	r, ok := f.regs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegister, name)
	}
	return r, nil
}

// Preload sets a register's value directly and clears any pending
// producer. Used at reset to apply a run's initial register values.
func (f *File) Preload(name insts.RegName, value float64) error {
	r, err := f.get(name)
	if err != nil {
		return err
	}
	r.value = value
	r.qi = ""
	return nil
}

// SetQi overwrites the register's producer tag unconditionally (WAW
// rename) and the RAT entry with it; this is where a later-issued
// instruction writing the same architectural register captures the
// name away from an earlier producer.
func (f *File) SetQi(name insts.RegName, tag string) error {
	r, err := f.get(name)
	if err != nil {
		return err
	}
	r.qi = tag
	return nil
}

// Status returns the current producer tag for a register, or "" if
// the register is ready.
func (f *File) Status(name insts.RegName) (string, error) {
	r, err := f.get(name)
	if err != nil {
		return "", err
	}
	return r.qi, nil
}

// ReadValue returns the register's authoritative value. Returns
// ErrRegisterBusy if a producer is still pending.
func (f *File) ReadValue(name insts.RegName) (float64, error) {
	r, err := f.get(name)
	if err != nil {
		return 0, err
	}
	if r.qi != "" {
		return 0, fmt.Errorf("%w: %q (pending %s)", ErrRegisterBusy, name, r.qi)
	}
	return r.value, nil
}

// WriteFromCDB applies a CDB broadcast from producing station tag.
// For every register whose Qi equals tag, the value is written and
// Qi is cleared (the WAW guard: a register renamed to a different,
// later tag is left untouched, so a superseded producer's broadcast
// never clobbers a newer rename).
func (f *File) WriteFromCDB(tag string, value float64) {
	for _, r := range f.regs {
		if r.qi == tag {
			r.value = value
			r.qi = ""
		}
	}
}

// Snapshot is a point-in-time view of one register, for observability.
type Snapshot struct {
	Name  insts.RegName
	Value float64
	Qi    string
}

// RAT returns the register alias table: the set of registers with a
// non-empty producer tag. Exists to let tests and pollers assert the
// invariant "RAT is exactly {R -> T : qi(R) == Some(T)}" directly.
func (f *File) RAT() map[insts.RegName]string {
	out := make(map[insts.RegName]string)
	for name, r := range f.regs {
		if r.qi != "" {
			out[name] = r.qi
		}
	}
	return out
}

// Snapshot returns the current state of every register, sorted by
// class then index is not guaranteed; callers that need stable order
// should sort the returned slice themselves.
func (f *File) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, len(f.regs))
	for name, r := range f.regs {
		out = append(out, Snapshot{Name: name, Value: r.value, Qi: r.qi})
	}
	return out
}
