package sink

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"console":  KindConsole,
		"FILE":     KindFile,
		"http":     KindNetwork,
		"network":  KindNetwork,
		"database": KindStore,
		" store ":  KindStore,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseKind("kafka")
	assert.Error(t, err)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(KindFile, "write", nil))

	err := Wrap(KindFile, "write", io.ErrShortWrite)
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindFile, se.Kind)
	assert.True(t, errors.Is(err, io.ErrShortWrite))
	assert.Equal(t, "file sink write: short write", err.Error())

	// Already-wrapped errors keep their original kind.
	again := Wrap(KindStore, "flush", err)
	require.True(t, errors.As(again, &se))
	assert.Equal(t, KindFile, se.Kind)
}
