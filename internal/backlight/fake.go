package backlight

// Fake records actuator calls for test assertions.
type Fake struct {
	// Calls lists every call in order: "update", "dim", "off",
	// "standby:on", "standby:off", "key:on", "key:off".
	Calls []string

	// Err, if set, is returned by every call after it is recorded.
	Err error

	// InStandby tracks the last Standby argument.
	InStandby bool
}

// NewFake creates a Fake actuator.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) record(call string) error {
	f.Calls = append(f.Calls, call)
	return f.Err
}

// Update records "update".
func (f *Fake) Update() error { return f.record("update") }

// Dim records "dim".
func (f *Fake) Dim() error { return f.record("dim") }

// Off records "off".
func (f *Fake) Off() error { return f.record("off") }

// Standby records the standby switch.
func (f *Fake) Standby(on bool) error {
	f.InStandby = on
	if on {
		return f.record("standby:on")
	}
	return f.record("standby:off")
}

// KeyLight records the key-backlight switch.
func (f *Fake) KeyLight(on bool) error {
	if on {
		return f.record("key:on")
	}
	return f.record("key:off")
}

// Last returns the most recent call, or "".
func (f *Fake) Last() string {
	if len(f.Calls) == 0 {
		return ""
	}
	return f.Calls[len(f.Calls)-1]
}

// Reset clears recorded calls and the injected error.
func (f *Fake) Reset() {
	f.Calls = nil
	f.Err = nil
	f.InStandby = false
}
