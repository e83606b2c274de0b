package gpio

import "errors"

// FakeReader is a test double that returns scripted button levels.
type FakeReader struct {
	// Levels contains scripted pressed values to return.
	// Each call to Read() consumes the next level.
	Levels []bool

	// index tracks current position in Levels
	index int

	// Reads counts calls to Read
	Reads int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given levels.
func NewFakeReader(levels []bool) *FakeReader {
	return &FakeReader{Levels: levels}
}

// Held returns n pressed levels.
func Held(n int) []bool {
	levels := make([]bool, n)
	for i := range levels {
		levels[i] = true
	}
	return levels
}

// Read returns the next scripted level.
// If levels are exhausted, returns the last level repeatedly.
func (f *FakeReader) Read() (bool, error) {
	f.Reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Levels) == 0 {
		return false, errors.New("no levels configured")
	}

	level := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}

	return level, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of levels.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Reads = 0
	f.Closed = false
}
