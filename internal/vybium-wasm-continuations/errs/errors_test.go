package errs

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := Soundness("return without open frame at eid %d", 7)

	require.ErrorIs(t, err, ErrSoundness)
	require.NotErrorIs(t, err, ErrResource)
	require.Contains(t, err.Error(), "[soundness]")
	require.Contains(t, err.Error(), "eid 7")
}

func TestErrorWrappedChain(t *testing.T) {
	inner := Resource(io.ErrShortWrite, "write %s", "etable")
	outer := fmt.Errorf("stage slice 3: %w", inner)

	require.ErrorIs(t, outer, ErrResource)
	require.ErrorIs(t, outer, io.ErrShortWrite)
	require.Equal(t, CodeResource, CodeOf(outer))
	require.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	require.Equal(t, CodeUnknown, CodeOf(nil))
}

func TestSentinelMessage(t *testing.T) {
	require.Equal(t, "continuation error [invalid-config]: invalid-config", ErrInvalidConfig.Error())
}

func TestCodeString(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CodeInvalidConfig, "invalid-config"},
		{CodeInvalidInput, "invalid-input"},
		{CodeSoundness, "soundness"},
		{CodeResource, "resource"},
		{CodeConsistency, "consistency"},
		{Code(99), "unknown"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.code.String())
	}
}
