package prefs

import (
	"context"
	"strconv"
)

// Fake is an in-memory Store for tests.
type Fake struct {
	Values map[string]int

	// Err, if set, is returned by every call.
	Err error

	// Writes lists "key=value" for every successful write, in order.
	Writes []string
}

// NewFake creates an empty Fake; reads return defaults.
func NewFake() *Fake {
	return &Fake{Values: make(map[string]int)}
}

// Brightness returns the stored brightness, or DefaultBrightness.
func (f *Fake) Brightness(context.Context) (int, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	v, ok := f.Values[KeyBrightness]
	if !ok {
		return DefaultBrightness, nil
	}
	return v, nil
}

// SetBrightness stores pct, clamped.
func (f *Fake) SetBrightness(_ context.Context, pct int) error {
	return f.set(KeyBrightness, ClampBrightness(pct))
}

// AutoBrightness returns the stored switch.
func (f *Fake) AutoBrightness(context.Context) (bool, error) {
	if f.Err != nil {
		return false, f.Err
	}
	return f.Values[KeyAutoBrightness] != 0, nil
}

// SetAutoBrightness stores the switch.
func (f *Fake) SetAutoBrightness(_ context.Context, on bool) error {
	return f.set(KeyAutoBrightness, boolToInt(on))
}

func (f *Fake) set(key string, v int) error {
	if f.Err != nil {
		return f.Err
	}
	f.Values[key] = v
	f.Writes = append(f.Writes, key+"="+strconv.Itoa(v))
	return nil
}
