//go:build !linux

package gpio

// RealReader is never constructed off Linux; NewRealReader always fails.
type RealReader struct {
	chip string
	pin  int
}

// NewRealReader reports ErrUnsupported.
func NewRealReader(chipName string, pin int) (*RealReader, error) {
	return nil, unsupported(chipName, pin)
}

func (r *RealReader) Read() (bool, error) {
	return false, unsupported(r.chip, r.pin)
}

func (r *RealReader) Close() error {
	return nil
}
