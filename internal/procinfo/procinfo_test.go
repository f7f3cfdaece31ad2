package procinfo

import (
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemSelf(t *testing.T) {
	var s System
	alive, err := s.Alive(os.Getpid())
	require.NoError(t, err)
	assert.True(t, alive)
	assert.NotEqual(t, UnknownName, s.Name(os.Getpid()))
}

func TestSystemInvalidPID(t *testing.T) {
	var s System
	alive, err := s.Alive(0)
	require.NoError(t, err)
	assert.False(t, alive)
	assert.Equal(t, UnknownName, s.Name(-1))
}

func TestFake(t *testing.T) {
	f := NewFake(map[int]string{100: "media-player"})
	assert.Equal(t, "media-player", f.Name(100))
	assert.Equal(t, UnknownName, f.Name(200))

	alive, err := f.Alive(100)
	require.NoError(t, err)
	assert.True(t, alive)

	f.Kill(100)
	alive, _ = f.Alive(100)
	assert.False(t, alive)

	f.Err = errors.New("proc unreadable")
	_, err = f.Alive(100)
	assert.Error(t, err)
}
