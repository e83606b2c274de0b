// Package adc provides analog sensor sampling with hardware abstraction.
// The real implementation reads a Linux IIO voltage channel.
// The fake implementation allows testing without hardware.
package adc

import "errors"

// ErrTransient marks a conversion failure that is expected to clear on retry.
var ErrTransient = errors.New("adc: transient conversion failure")

// ErrSensorUnavailable is returned when a bounded retry policy gives up.
var ErrSensorUnavailable = errors.New("adc: sensor unavailable")

// Sampler performs single ADC conversions.
type Sampler interface {
	// Sample performs one conversion and returns the raw reading.
	// Failures wrap ErrTransient.
	Sample() (int, error)
}

// Default IIO device and channel.
const (
	DefaultDevice  = "/sys/bus/iio/devices/iio:device0"
	DefaultChannel = 0
)
