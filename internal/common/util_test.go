package common

import (
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	for _, n := range []int{0, 1, 16} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			s, err := MakeRandHexString(n)
			require.NoError(t, err)
			assert.Len(t, s, n*2)

			b, err := hex.DecodeString(s)
			require.NoError(t, err)
			assert.Len(t, b, n)
		})
	}
}

func TestMakeRandHexString_Distinct(t *testing.T) {
	a, err := MakeRandHexString(16)
	require.NoError(t, err)
	b, err := MakeRandHexString(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestGenerateRandByteArray(t *testing.T) {
	a := GenerateRandByteArray(24)
	b := GenerateRandByteArray(24)
	assert.Len(t, a, 24)
	assert.NotEqual(t, a, b)
}

func TestWipeByteArray(t *testing.T) {
	buf := []byte("secret")
	WipeByteArray(buf)
	assert.Equal(t, make([]byte, 6), buf)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}

func TestErrorKindsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrPersistence, ErrUnsupportedSchema)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, ErrUnsupportedSchema)
	assert.False(t, errors.Is(err, ErrNetwork))
}
