package logic

// DefaultThreshold is the number of consecutive pressed samples needed to
// confirm a long press.
const DefaultThreshold = 500

// Debouncer converts polled button levels into a single confirmed event per
// sustained press.
//
// The counter starts at the threshold, counts down while the button is held
// and is reset to the threshold on any released sample. It fires exactly once
// when it reaches zero and stays there until the button is released.
type Debouncer struct {
	threshold int
	counter   int
}

// NewDebouncer creates a debouncer in the idle state. A threshold below 1 is
// treated as 1.
func NewDebouncer(threshold int) *Debouncer {
	if threshold < 1 {
		threshold = 1
	}
	return &Debouncer{
		threshold: threshold,
		counter:   threshold,
	}
}

// Step advances the machine with one sample of the button level and reports
// whether this sample confirmed a press.
func (d *Debouncer) Step(pressed bool) bool {
	if !pressed {
		d.counter = d.threshold
		return false
	}
	if d.counter == 0 {
		// Still held after firing
		return false
	}
	d.counter--
	return d.counter == 0
}

// Reset returns the machine to idle.
func (d *Debouncer) Reset() {
	d.counter = d.threshold
}

// State returns the current debounce state.
func (d *Debouncer) State() State {
	switch d.counter {
	case d.threshold:
		return StateIdle
	case 0:
		return StateConfirmed
	default:
		return StateHolding
	}
}

// Counter returns the remaining pressed samples before confirmation.
func (d *Debouncer) Counter() int {
	return d.counter
}

// Threshold returns the configured threshold.
func (d *Debouncer) Threshold() int {
	return d.threshold
}
