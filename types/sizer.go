package types

import "encoding/json"

// DefaultEntrySize is used when a value cannot be measured.
const DefaultEntrySize int64 = 1024

/*
SizeEstimator estimates how many bytes a value occupies in memory.

Exactness is NOT required. The cache only needs a number that grows with
the value so the memory budget means something. Tests plug in a fixed
estimator to get deterministic sizes.
*/
type SizeEstimator interface {
	Estimate(value any) (int64, error)
}

// JSONSizer serializes the value and counts two bytes per encoded byte,
// the same accounting a UTF-16 string representation would need.
type JSONSizer struct{}

func (JSONSizer) Estimate(value any) (int64, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}
	return int64(len(b)) * 2, nil
}

// FixedSizer reports the same size for every value.
type FixedSizer int64

func (f FixedSizer) Estimate(any) (int64, error) { return int64(f), nil }

// SizerFunc adapts a function to SizeEstimator.
type SizerFunc func(value any) (int64, error)

func (f SizerFunc) Estimate(value any) (int64, error) { return f(value) }
