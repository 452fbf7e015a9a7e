package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeDigital_AllClear(t *testing.T) {
	d := DecodeDigital(0)

	require.False(t, d.EmergencyOff)
	require.False(t, d.FanError)
	require.Zero(t, d.DriveCmd)
	require.Zero(t, d.DriveAct)
	// Active-low lines read as asserted when the word is zero.
	require.True(t, d.BrakeOn)
	require.True(t, d.AtNorthLimit)
	require.True(t, d.AtSouthLimit)
	require.True(t, d.NoiseAOn)
	require.True(t, d.NoiseBOn)
}

func TestDecodeDigital_Fields(t *testing.T) {
	w := uint32(1<<8 | 0b10<<9 | 1<<11 | 1<<13 | 0b11<<14 | 1<<20 | 1<<22)
	d := DecodeDigital(w)

	require.True(t, d.EmergencyOff)
	require.Equal(t, 2, d.DriveCmd)
	require.Equal(t, 3, d.DriveAct)
	require.False(t, d.NoiseAOn)
	require.True(t, d.NoiseBOn)
	require.False(t, d.BrakeOn)
	require.False(t, d.AtNorthLimit)
	require.True(t, d.AtSouthLimit)
	require.True(t, d.FanError)
}

// Every word, bit by bit, against the hardware contract.
func TestDecodeDigital_BitContract(t *testing.T) {
	words := []uint32{0, 0xFFFFFFFF, 0x00555555, 0x00AAAAAA, 0x00700100, 0x00301800, 0x00402000}
	for i := uint(0); i < 24; i++ {
		words = append(words, 1<<i, ^uint32(1<<i))
	}

	for _, w := range words {
		d := DecodeDigital(w)
		b := func(n uint) bool { return (w>>n)&1 == 1 }

		require.Equal(t, b(8), d.EmergencyOff, "word %#x", w)
		require.Equal(t, !b(13), d.BrakeOn, "word %#x", w)
		require.Equal(t, !b(20), d.AtNorthLimit, "word %#x", w)
		require.Equal(t, !b(21), d.AtSouthLimit, "word %#x", w)
		require.Equal(t, b(22), d.FanError, "word %#x", w)
		require.Equal(t, !b(11), d.NoiseAOn, "word %#x", w)
		require.Equal(t, !b(12), d.NoiseBOn, "word %#x", w)
		require.Equal(t, int((w>>9)&3), d.DriveCmd, "word %#x", w)
		require.Equal(t, int((w>>14)&3), d.DriveAct, "word %#x", w)
	}
}
