package codec

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAffineTransforms(t *testing.T) {
	require.Equal(t, 25.0, Temperature(0.75))
	require.InDelta(t, -61.429, RFPower(1.0), 0.001)
	require.InDelta(t, -90+1000.0/35.0, IFPower(1.0), 1e-9)
}

func TestDecodeAntenna(t *testing.T) {
	raw := make([]float64, AntennaSample.Len())
	raw[idxFocusTemp] = 0.75
	raw[idxMotorTemp] = 0.5
	raw[idxLaserVoltsA] = 1.25
	raw[idxRFPowerA] = 1.0
	raw[idxFEBCurrentA] = 0.2
	raw[idxLNACurrentA] = 0.3
	raw[idxFEBTempA] = 0.7
	raw[idxLNACurrentB] = 0.4
	raw[idxRFPowerB] = 2.0
	raw[idxLaserVoltsB] = 1.5
	raw[idxFEBCurrentB] = 0.1
	raw[idxFEBTempB] = 0.6
	raw[idxPSUVolt] = 12.1
	raw[idxModuleTemp] = 300.15
	raw[idxDigital] = float64(1<<13 | 1<<20 | 1<<21 | 1<<11 | 1<<12 | 0b01<<9 | 0b10<<14)
	raw[idxCmdEl] = 45
	raw[idxEl] = 44.9
	raw[idxElErr] = 0.1
	raw[idxElRaw] = 3.2
	raw[idxVScale] = 1.1
	raw[idxVOff] = 1.2
	raw[idxAngOff] = 1.3
	raw[idxAOff] = 1.4
	raw[idxCollim] = 1.5
	raw[idxVPSUAvg] = 1.6
	raw[idxDriveState] = 3

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err := DecodeAntenna(raw, 24, false, at)
	require.NoError(t, err)

	require.Equal(t, 24, m.AntNum)
	require.InDelta(t, 60370.5, m.Time, 1e-8)
	require.Equal(t, 44.9, m.AntEl)
	require.Equal(t, 45.0, m.AntCmdEl)
	require.Equal(t, 0.1, m.AntElErr)
	require.Equal(t, 3.2, m.AntElRaw)
	require.InDelta(t, 25.0, m.FocusTemp, 1e-9)
	require.InDelta(t, 0.0, m.MotorTemp, 1e-9)
	require.Equal(t, 1.25, m.LaserVoltsA)
	require.InDelta(t, -61.429, m.RFPwrA, 0.001)
	require.InDelta(t, 200.0, m.FEBCurrentA, 1e-9)
	require.InDelta(t, 30.0, m.LNACurrentA, 1e-9)
	require.InDelta(t, 20.0, m.FEBTempA, 1e-9)
	require.InDelta(t, 40.0, m.LNACurrentB, 1e-9)
	require.InDelta(t, -32.858, m.RFPwrB, 0.001)
	require.Equal(t, 1.5, m.LaserVoltsB)
	require.InDelta(t, 100.0, m.FEBCurrentB, 1e-9)
	require.InDelta(t, 10.0, m.FEBTempB, 1e-9)
	require.Equal(t, 12.1, m.PSUVolt)
	require.InDelta(t, 27.0, m.LJTemp, 1e-9)
	require.Equal(t, 1, m.DrvCmd)
	require.Equal(t, 2, m.DrvAct)
	require.Equal(t, 3, m.DrvState)
	require.False(t, m.BrakeOn)
	require.False(t, m.AtNorthLim)
	require.False(t, m.AtSouthLim)
	require.False(t, m.NoiseAOn)
	require.False(t, m.NoiseBOn)
	require.False(t, m.FanErr)
	require.False(t, m.EmergencyOff)
	require.Equal(t, 1.6, m.VPSUAvg)
}

func TestDecodeAntenna_ShortSample(t *testing.T) {
	_, err := DecodeAntenna(make([]float64, 10), 1, false, time.Now())
	require.ErrorIs(t, err, ErrShortSample)
}

func TestAntennaMonitor_JSONOrder(t *testing.T) {
	data, err := json.Marshal(NewAntennaMonitor(3, true))
	require.NoError(t, err)

	order := []string{
		"sim", "ant_num", "time", "ant_el", "ant_cmd_el", "ant_el_err", "ant_el_raw",
		"drv_cmd", "drv_act", "drv_state", "at_north_lim", "at_south_lim", "brake_on",
		"motor_temp", "focus_temp", "lna_current_a", "lna_current_b", "noise_a_on",
		"noise_b_on", "rf_pwr_a", "rf_pwr_b", "feb_current_a", "feb_current_b",
		"laser_volts_a", "laser_volts_b", "feb_temp_a", "feb_temp_b", "psu_volt",
		"lj_temp", "v_scale", "v_off", "ang_off", "a_off", "collim", "v_psu_avg",
		"fan_err", "emergency_off",
	}
	s := string(data)
	last := -1
	for _, k := range order {
		idx := strings.Index(s, `"`+k+`":`)
		require.Greater(t, idx, last, "field %s out of order", k)
		last = idx
	}

	var back map[string]any
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back, len(order))
	require.Equal(t, true, back["sim"])
	require.Equal(t, -273.15, back["motor_temp"])
}

func TestAntennaMonitor_Fields(t *testing.T) {
	f := NewAntennaMonitor(1, false).Fields()
	require.Equal(t, 999.0, f["v_scale"])
	require.NotContains(t, f, "ant_num")
	require.NotContains(t, f, "time")
}
