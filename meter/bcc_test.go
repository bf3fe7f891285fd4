package meter

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

func TestBlockCheckCharacterEmpty(t *testing.T) {
	require.Equal(t, byte(0x00), BlockCheckCharacter(nil))
	require.Equal(t, byte(0x00), BlockCheckCharacter([]byte{}))
}

func TestBlockCheckCharacterSingleByte(t *testing.T) {
	require.Equal(t, byte(0x41), BlockCheckCharacter([]byte{0x41}))
	require.Equal(t, byte(0x00), BlockCheckCharacter([]byte{0x41, 0x41}))
}

func TestBlockCheckCharacterDistributesOverConcatenation(t *testing.T) {
	f := func(a, b []byte) bool {
		return BlockCheckCharacter(a)^BlockCheckCharacter(b) == BlockCheckCharacter(append(append([]byte{}, a...), b...))
	}
	require.NoError(t, quick.Check(f, nil))
}
