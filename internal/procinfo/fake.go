package procinfo

// Fake is a scripted process table.
type Fake struct {
	// Names maps running pids to executable names.
	Names map[int]string

	// Err, if set, is returned by Alive.
	Err error
}

// NewFake creates a Fake with the given running processes.
func NewFake(names map[int]string) *Fake {
	m := make(map[int]string, len(names))
	for k, v := range names {
		m[k] = v
	}
	return &Fake{Names: m}
}

// Name returns the scripted name, or UnknownName.
func (f *Fake) Name(pid int) string {
	if n, ok := f.Names[pid]; ok {
		return n
	}
	return UnknownName
}

// Alive reports whether pid is scripted as running.
func (f *Fake) Alive(pid int) (bool, error) {
	if f.Err != nil {
		return false, f.Err
	}
	_, ok := f.Names[pid]
	return ok, nil
}

// Kill removes pid from the table.
func (f *Fake) Kill(pid int) {
	delete(f.Names, pid)
}
