// Package gatt holds the attribute table exposed by the beacon and the
// per-connection subscription state that goes with it.
//
// The table (Registry) is built once at startup and never changes. Each
// connection gets its own Server, which pairs the table with a fresh
// subscription block, so subscriptions never leak from one peer to the next.
package gatt

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidHandle      = errors.New("gatt: invalid handle")
	ErrInvalidOffset      = errors.New("gatt: invalid offset")
	ErrReadNotPermitted   = errors.New("gatt: read not permitted")
	ErrWriteNotPermitted  = errors.New("gatt: write not permitted")
	ErrDuplicateUUID      = errors.New("gatt: duplicate uuid")
	ErrMissingReadHandler = errors.New("gatt: readable characteristic without read handler")
)

// Handle is an attribute handle.
type Handle uint16

// CharID identifies a characteristic by its position in the registry.
type CharID int

// Properties is a bit set of characteristic capabilities.
type Properties uint8

const (
	PropRead Properties = 1 << iota
	PropWrite
	PropNotify
)

// Has reports whether all bits of q are set in p.
func (p Properties) Has(q Properties) bool {
	return p&q == q
}

// ReadFunc produces the value of a characteristic starting at offset.
// It must not block.
type ReadFunc func(offset int) []byte

// WriteFunc receives a write to a characteristic. It must not block.
type WriteFunc func(offset int, data []byte)

// Characteristic describes one data point.
type Characteristic struct {
	Name  string
	UUID  uuid.UUID
	Props Properties
	Read  ReadFunc
	Write WriteFunc

	// Assigned by NewRegistry.
	ValueHandle   Handle
	ControlHandle Handle // zero unless PropNotify
}

// Notification is an outbound value push for a subscribed characteristic.
type Notification struct {
	ID     CharID
	Handle Handle
	Value  []byte
}

// Control attribute values (little-endian CCCD).
var (
	controlEnabled  = []byte{0x01, 0x00}
	controlDisabled = []byte{0x00, 0x00}
)

// EnableNotifications is the control value a peer writes to subscribe.
func EnableNotifications() []byte {
	return append([]byte(nil), controlEnabled...)
}

// DisableNotifications is the control value a peer writes to unsubscribe.
func DisableNotifications() []byte {
	return append([]byte(nil), controlDisabled...)
}
