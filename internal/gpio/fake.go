package gpio

import "github.com/pkg/errors"

// FakeCover is a test double that returns scripted cover readings.
type FakeCover struct {
	// Samples contains scripted closed values to return.
	// Each call to Closed() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Reads counts calls to Closed.
	Reads int

	// Released tracks if Close was called
	Released bool

	// ReadError, if set, will be returned by Closed()
	ReadError error
}

// NewFakeCover creates a FakeCover with the given samples.
func NewFakeCover(samples ...bool) *FakeCover {
	return &FakeCover{Samples: samples}
}

// Closed returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeCover) Closed() (bool, error) {
	f.Reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// Close marks the sensor as released.
func (f *FakeCover) Close() error {
	f.Released = true
	return nil
}

// Reset rewinds the samples.
func (f *FakeCover) Reset() {
	f.index = 0
	f.Reads = 0
	f.Released = false
}

// FakeKey lets tests press a key by hand.
type FakeKey struct {
	onPress  func()
	Released bool
}

// NewFakeKey creates a FakeKey that calls onPress on each Press.
func NewFakeKey(onPress func()) *FakeKey {
	return &FakeKey{onPress: onPress}
}

// Press simulates one key press. Presses after Close are ignored.
func (f *FakeKey) Press() {
	if f.Released {
		return
	}
	f.onPress()
}

// Close stops delivering presses.
func (f *FakeKey) Close() error {
	f.Released = true
	return nil
}
