package scenario

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/lmm/lmm"
)

var errorNames = []struct {
	name string
	err  error
}{
	{"out_of_memory", lmm.ErrOutOfMemory},
	{"invalid_range", lmm.ErrInvalidRange},
	{"invalid_argument", lmm.ErrInvalidArgument},
	{"region_overlap", lmm.ErrRegionOverlap},
}

// ErrorName returns the scenario name of the allocator error err wraps,
// "" for nil and "other" for anything else.
func ErrorName(err error) string {
	if err == nil {
		return ""
	}
	for _, e := range errorNames {
		if errors.Is(err, e.err) {
			return e.name
		}
	}
	return "other"
}

func knownErrorName(name string) bool {
	for _, e := range errorNames {
		if e.name == name {
			return true
		}
	}
	return false
}
