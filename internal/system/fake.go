package system

// FakeSuspender counts suspend requests.
type FakeSuspender struct {
	Calls int
	Err   error
}

// Suspend records the request.
func (f *FakeSuspender) Suspend() error {
	f.Calls++
	return f.Err
}
