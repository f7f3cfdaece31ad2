package smartstay

// FakeCapability captures detection requests so tests can complete them.
type FakeCapability struct {
	// Pending holds the callbacks of requests not yet completed, oldest first.
	Pending []Callback

	// Calls counts Detect invocations.
	Calls int

	// Err, if set, is returned by Detect and the callback is not kept.
	Err error
}

// Detect records the request.
func (f *FakeCapability) Detect(done Callback) error {
	f.Calls++
	if f.Err != nil {
		return f.Err
	}
	f.Pending = append(f.Pending, done)
	return nil
}

// Complete invokes the oldest pending callback with degree. It reports
// whether a request was pending.
func (f *FakeCapability) Complete(degree int) bool {
	if len(f.Pending) == 0 {
		return false
	}
	cb := f.Pending[0]
	f.Pending = f.Pending[1:]
	cb(degree)
	return true
}

// FakeLoader returns a fixed capability or error and counts loads.
type FakeLoader struct {
	Capability Capability
	Err        error
	Loads      int
}

// Load returns the configured capability.
func (l *FakeLoader) Load() (Capability, error) {
	l.Loads++
	if l.Err != nil {
		return nil, l.Err
	}
	if l.Capability == nil {
		return nil, ErrUnavailable
	}
	return l.Capability, nil
}
