package gatt

// MaxValueLen is the largest characteristic value the beacon serves.
const MaxValueLen = 20

// FixedValue is a constant value bounded to MaxValueLen bytes with an
// explicit valid length.
type FixedValue struct {
	buf [MaxValueLen]byte
	n   int
}

// NewFixedValue copies s, truncating it to MaxValueLen bytes.
func NewFixedValue(s string) FixedValue {
	var v FixedValue
	v.n = copy(v.buf[:], s)
	return v
}

// Len returns the number of valid bytes.
func (v FixedValue) Len() int {
	return v.n
}

// Bytes returns a copy of the valid bytes.
func (v FixedValue) Bytes() []byte {
	return append([]byte(nil), v.buf[:v.n]...)
}

// ReadAt returns the valid bytes from offset on.
func (v FixedValue) ReadAt(offset int) []byte {
	if offset < 0 || offset >= v.n {
		return []byte{}
	}
	return append([]byte(nil), v.buf[offset:v.n]...)
}

// ReadFunc adapts v to a ReadFunc.
func (v FixedValue) ReadFunc() ReadFunc {
	return v.ReadAt
}
