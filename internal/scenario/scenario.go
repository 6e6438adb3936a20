// Package scenario loads YAML scripts of allocator operations and replays
// them against a fresh lmm.Allocator.
//
// A scenario lists regions to register and then a sequence of steps:
//
//	name: boot
//	validate: true
//	regions:
//	  - {min: 0x1000, max: 0x100000, priority: 1, flags: 0x3}
//	steps:
//	  - {op: alloc, size: 0x500, flags: 0x1, as: buf, expect: 0x1000}
//	  - {op: remove_free, addr: 0x2000, size: 0x100, expect_size: 0x100}
//	  - {op: free, ref: buf}
//
// Numbers are decimal or 0x/0o/0b prefixed and may contain underscores.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Op names a step operation.
type Op string

// Supported operations.
const (
	OpAddRegion    Op = "add_region"
	OpAddFree      Op = "add_free"
	OpAlloc        Op = "alloc"
	OpAllocAligned Op = "alloc_aligned"
	OpAllocGen     Op = "alloc_gen"
	OpFree         Op = "free"
	OpRemoveFree   Op = "remove_free"
	OpReinsert     Op = "reinsert"
	OpFindFree     Op = "find_free"
	OpValidate     Op = "validate"
)

var knownOps = map[Op]bool{
	OpAddRegion: true, OpAddFree: true, OpAlloc: true, OpAllocAligned: true,
	OpAllocGen: true, OpFree: true, OpRemoveFree: true, OpReinsert: true,
	OpFindFree: true, OpValidate: true,
}

// Number is a uint64 that accepts hex, octal and binary literals in YAML.
type Number uint64

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *Number) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.Newf("line %d: expected a number", value.Line)
	}
	v, err := strconv.ParseUint(value.Value, 0, 64)
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid number %q", value.Line, value.Value)
	}
	*n = Number(v)
	return nil
}

// MarshalYAML renders the number as hex.
func (n Number) MarshalYAML() (any, error) {
	return fmt.Sprintf("0x%x", uint64(n)), nil
}

// Region is a region registered before the first step.
type Region struct {
	Min      Number `yaml:"min"`
	Max      Number `yaml:"max"`
	Priority int    `yaml:"priority"`
	Flags    Number `yaml:"flags"`
	Reserved bool   `yaml:"reserved"` // register without seeding free space
}

// Step is one operation. Which fields apply depends on Op.
type Step struct {
	Op Op `yaml:"op"`

	Addr        Number `yaml:"addr"`
	Size        Number `yaml:"size"`
	Flags       Number `yaml:"flags"`
	AlignBits   uint   `yaml:"align_bits"`
	AlignOffset Number `yaml:"align_offset"`
	Min         Number `yaml:"min"`
	Window      Number `yaml:"window"`

	// add_region only.
	Max      Number `yaml:"max"`
	Priority int    `yaml:"priority"`
	Reserved bool   `yaml:"reserved"`

	// As names the address an alloc step returns; Ref on a later free uses
	// it (and its size when Size is zero).
	As  string `yaml:"as"`
	Ref string `yaml:"ref"`

	// Expect is the address an alloc returns or the start find_free reports.
	Expect *Number `yaml:"expect"`
	// ExpectSize is the byte count remove_free returns or the size
	// find_free reports.
	ExpectSize *Number `yaml:"expect_size"`
	// ExpectError is one of the names returned by ErrorName.
	ExpectError string `yaml:"expect_error"`
}

// Scenario is a parsed scenario file.
type Scenario struct {
	Name     string   `yaml:"name"`
	Validate bool     `yaml:"validate"`
	Regions  []Region `yaml:"regions"`
	Steps    []Step   `yaml:"steps"`
}

// Load reads and parses the scenario at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a scenario document. Unknown keys and unknown operations
// are errors.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(err, "parse scenario")
	}
	for i, st := range s.Steps {
		if !knownOps[st.Op] {
			return nil, errors.Newf("step %d: unknown op %q", i+1, st.Op)
		}
		if st.ExpectError != "" && !knownErrorName(st.ExpectError) {
			return nil, errors.Newf("step %d: unknown expect_error %q", i+1, st.ExpectError)
		}
		if st.Op == OpFree && st.Ref == "" && st.Size == 0 {
			return nil, errors.Newf("step %d: free needs a size or a ref", i+1)
		}
	}
	return &s, nil
}
