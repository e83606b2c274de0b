package adc

import "fmt"

// Reading is a single scripted conversion result.
type Reading struct {
	Value int
	Fail  bool
}

// FakeSampler is a test double that returns scripted readings.
type FakeSampler struct {
	// Readings are consumed one per Sample call. When exhausted the last
	// reading repeats.
	Readings []Reading

	index int

	// Calls counts Sample invocations
	Calls int
}

// NewFakeSampler creates a FakeSampler with the given readings.
func NewFakeSampler(readings ...Reading) *FakeSampler {
	return &FakeSampler{Readings: readings}
}

// Sample returns the next scripted reading.
func (f *FakeSampler) Sample() (int, error) {
	f.Calls++
	if len(f.Readings) == 0 {
		return 0, nil
	}

	r := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}

	if r.Fail {
		return 0, fmt.Errorf("%w: scripted failure", ErrTransient)
	}
	return r.Value, nil
}
