// Package device resolves the set of accelerator devices a run may use.
//
// The set is derived from a comma-separated device list, conventionally the
// CUDA_VISIBLE_DEVICES environment variable, and clamped to a configured
// maximum. The distributed launcher is invoked with one process per device
// in the clamped set.
package device

import (
	"fmt"
	"strings"

	"github.com/vk/lorapipe/internal/envutil"
)

// VisibleEnv is the environment variable consulted when no explicit device
// list is configured.
const VisibleEnv = "CUDA_VISIBLE_DEVICES"

// DefaultMax is the default upper bound on the number of devices a single
// run will occupy.
const DefaultMax = 2

// Set is an ordered, de-duplicated list of device identifiers. An empty Set
// means CPU fallback: the launcher still gets a single process.
type Set struct {
	ids []string
}

// Parse builds a Set from a comma-separated device list. Whitespace around
// entries is tolerated; empty entries and duplicates are rejected. An empty
// or all-whitespace input yields the empty (CPU) Set.
func Parse(list string) (Set, error) {
	if strings.TrimSpace(list) == "" {
		return Set{}, nil
	}
	parts := strings.Split(list, ",")
	ids := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		id := strings.TrimSpace(p)
		if id == "" {
			return Set{}, fmt.Errorf("device list %q contains an empty entry", list)
		}
		if _, dup := seen[id]; dup {
			return Set{}, fmt.Errorf("device list %q contains duplicate entry %q", list, id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return Set{ids: ids}, nil
}

// FromEnv builds a Set from the CUDA_VISIBLE_DEVICES environment variable.
func FromEnv() (Set, error) {
	return Parse(envutil.Getenv(VisibleEnv))
}

// Clamp returns a copy of the set truncated to at most max devices. The
// order of the original list is preserved. Non-positive max values fall
// back to DefaultMax.
func (s Set) Clamp(max int) Set {
	if max <= 0 {
		max = DefaultMax
	}
	if len(s.ids) <= max {
		return s
	}
	return Set{ids: s.ids[:max]}
}

// Count returns the number of worker processes to launch: one per device,
// or one on CPU fallback.
func (s Set) Count() int {
	if len(s.ids) == 0 {
		return 1
	}
	return len(s.ids)
}

// Empty reports whether the set has no devices (CPU fallback).
func (s Set) Empty() bool {
	return len(s.ids) == 0
}

// IDs returns the device identifiers in order. The returned slice must not
// be mutated.
func (s Set) IDs() []string {
	return s.ids
}

// String renders the set in the normalized comma-separated env-var form.
func (s Set) String() string {
	return strings.Join(s.ids, ",")
}

// Policy describes how the device set for a run is determined.
type Policy struct {
	// Visible is an explicit device list. When empty the CUDA_VISIBLE_DEVICES
	// environment variable is consulted instead.
	Visible string
	// Max is the device-count clamp. Zero means DefaultMax.
	Max int
}

// Resolve produces the final clamped Set for a run.
func (p Policy) Resolve() (Set, error) {
	var (
		set Set
		err error
	)
	if p.Visible != "" {
		set, err = Parse(p.Visible)
	} else {
		set, err = FromEnv()
	}
	if err != nil {
		return Set{}, err
	}
	return set.Clamp(p.Max), nil
}
