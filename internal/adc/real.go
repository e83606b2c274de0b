package adc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// RealSampler reads a voltage channel of a Linux IIO ADC through sysfs.
type RealSampler struct {
	rawPath string
}

// NewRealSampler opens channel ch of the IIO device at dir. If scale is not
// empty it is written to the channel's scale attribute, which selects the
// input attenuation on drivers that expose it.
func NewRealSampler(dir string, ch int, scale string) (*RealSampler, error) {
	rawPath := filepath.Join(dir, fmt.Sprintf("in_voltage%d_raw", ch))
	if _, err := os.Stat(rawPath); err != nil {
		return nil, fmt.Errorf("open adc channel %d: %w", ch, err)
	}

	if scale != "" {
		scalePath := filepath.Join(dir, fmt.Sprintf("in_voltage%d_scale", ch))
		if err := os.WriteFile(scalePath, []byte(scale), 0o644); err != nil {
			return nil, fmt.Errorf("set adc channel %d scale %q: %w", ch, scale, err)
		}
	}

	return &RealSampler{rawPath: rawPath}, nil
}

// Sample reads one conversion. Every read or parse failure is reported as
// transient: the driver returns EBUSY/ETIMEDOUT while a conversion is pending.
func (s *RealSampler) Sample() (int, error) {
	data, err := os.ReadFile(s.rawPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %q: %v", ErrTransient, strings.TrimSpace(string(data)), err)
	}
	return v, nil
}
