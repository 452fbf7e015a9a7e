package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeBackend(t *testing.T) {
	raw := make([]float64, BackendSample.Len())
	raw[idxPSUVoltage] = 5.1
	raw[idxPSUCurrent] = 0.25
	raw[idxBackendTemp] = 301.0
	for i := 0; i < BackendAntennas; i++ {
		base := idxAnalogStart + i*backendChannels
		raw[base+0] = float64(i) + 0.1 // pd a
		raw[base+1] = float64(i) + 0.2 // pd b
		raw[base+2] = 0.35             // if a
		raw[base+3] = 0.70             // if b
		raw[base+4] = float64(i) + 0.5 // lo
		raw[base+5] = 0.6              // beb a
		raw[base+6] = 0.7              // beb b
		raw[base+7] = 0.75             // temp
	}

	sets, err := DecodeBackend(raw, 11, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	for i, m := range sets {
		require.Equal(t, 11+i, m.AntNum)
		require.Equal(t, 60370.0, m.Time)
		require.InDelta(t, float64(i)+0.1, m.PDCurrentA, 1e-9)
		require.InDelta(t, float64(i)+0.2, m.PDCurrentB, 1e-9)
		require.InDelta(t, -80.0, m.IFPwrA, 1e-9)
		require.InDelta(t, -70.0, m.IFPwrB, 1e-9)
		require.InDelta(t, float64(i)+0.5, m.LOMon, 1e-9)
		require.InDelta(t, 60.0, m.BEBCurrentA, 1e-9)
		require.InDelta(t, 70.0, m.BEBCurrentB, 1e-9)
		require.InDelta(t, 25.0, m.BEBTemp, 1e-9)
		require.Equal(t, 5.1, m.PSUVoltage)
		require.InDelta(t, 250.0, m.PSUCurrent, 1e-9)
		require.Equal(t, 301.0, m.LJTemp)
	}
}

func TestDecodeBackend_ShortSample(t *testing.T) {
	_, err := DecodeBackend(make([]float64, 82), 1, time.Now())
	require.ErrorIs(t, err, ErrShortSample)
}

func TestBackendMonitor_JSON(t *testing.T) {
	data, err := json.Marshal(BackendMonitor{AntNum: 7})
	require.NoError(t, err)
	require.Contains(t, string(data), `{"ant_num":7,"time":0,"pd_current_a":0`)
}

func TestLayoutLen(t *testing.T) {
	require.Equal(t, 28, AntennaSample.Len())
	require.Equal(t, 83, BackendSample.Len())
}
