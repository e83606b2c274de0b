//go:build !linux

package transport

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/beacon-sensor/internal/gatt"
)

// BLE is not available on non-Linux platforms.
type BLE struct{}

// NewBLE returns a transport whose StartSession always fails.
func NewBLE(reg *gatt.Registry, opts BLEOptions, log logrus.FieldLogger) *BLE {
	return &BLE{}
}

// StartSession returns ErrStackInit on non-Linux platforms.
func (b *BLE) StartSession() (Session, StartStatus, error) {
	return nil, StartStatus{}, fmt.Errorf("%w: ble peripheral requires linux", ErrStackInit)
}

// Close is a no-op on non-Linux platforms.
func (b *BLE) Close() error {
	return nil
}
