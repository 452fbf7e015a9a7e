package codec

import (
	"fmt"
	"time"
)

// KelvinOffset converts the module's Kelvin temperature register to Celsius.
const KelvinOffset = -273.15

// Positions within AntennaSample.
const (
	idxFocusTemp   = 0
	idxMotorTemp   = 1
	idxLaserVoltsA = 2
	idxRFPowerA    = 3
	idxFEBCurrentA = 4
	idxLNACurrentA = 5
	idxFEBTempA    = 6
	idxLNACurrentB = 7
	idxRFPowerB    = 8
	idxLaserVoltsB = 9
	idxFEBCurrentB = 10
	idxFEBTempB    = 11
	idxPSUVolt     = 12
	idxModuleTemp  = 14
	idxDigital     = 15
	idxCmdEl       = 16
	idxEl          = 17
	idxElErr       = 18
	idxElRaw       = 19
	idxVScale      = 20
	idxVOff        = 21
	idxAngOff      = 22
	idxAOff        = 23
	idxCollim      = 24
	idxVPSUAvg     = 25
	idxDriveState  = 26
)

// AntennaMonitor is the monitor point set published for one antenna.
// Field order is the publication order.
type AntennaMonitor struct {
	Sim          bool    `json:"sim"`
	AntNum       int     `json:"ant_num"`
	Time         float64 `json:"time"`
	AntEl        float64 `json:"ant_el"`
	AntCmdEl     float64 `json:"ant_cmd_el"`
	AntElErr     float64 `json:"ant_el_err"`
	AntElRaw     float64 `json:"ant_el_raw"`
	DrvCmd       int     `json:"drv_cmd"`
	DrvAct       int     `json:"drv_act"`
	DrvState     int     `json:"drv_state"`
	AtNorthLim   bool    `json:"at_north_lim"`
	AtSouthLim   bool    `json:"at_south_lim"`
	BrakeOn      bool    `json:"brake_on"`
	MotorTemp    float64 `json:"motor_temp"`
	FocusTemp    float64 `json:"focus_temp"`
	LNACurrentA  float64 `json:"lna_current_a"`
	LNACurrentB  float64 `json:"lna_current_b"`
	NoiseAOn     bool    `json:"noise_a_on"`
	NoiseBOn     bool    `json:"noise_b_on"`
	RFPwrA       float64 `json:"rf_pwr_a"`
	RFPwrB       float64 `json:"rf_pwr_b"`
	FEBCurrentA  float64 `json:"feb_current_a"`
	FEBCurrentB  float64 `json:"feb_current_b"`
	LaserVoltsA  float64 `json:"laser_volts_a"`
	LaserVoltsB  float64 `json:"laser_volts_b"`
	FEBTempA     float64 `json:"feb_temp_a"`
	FEBTempB     float64 `json:"feb_temp_b"`
	PSUVolt      float64 `json:"psu_volt"`
	LJTemp       float64 `json:"lj_temp"`
	VScale       float64 `json:"v_scale"`
	VOff         float64 `json:"v_off"`
	AngOff       float64 `json:"ang_off"`
	AOff         float64 `json:"a_off"`
	Collim       float64 `json:"collim"`
	VPSUAvg      float64 `json:"v_psu_avg"`
	FanErr       bool    `json:"fan_err"`
	EmergencyOff bool    `json:"emergency_off"`
}

// NewAntennaMonitor returns the placeholder set used before the first
// successful sample: temperatures at absolute zero, powers at -100 dBm
// and script-supplied values at 999.
func NewAntennaMonitor(antNum int, sim bool) AntennaMonitor {
	return AntennaMonitor{
		Sim:       sim,
		AntNum:    antNum,
		MotorTemp: KelvinOffset,
		FocusTemp: KelvinOffset,
		RFPwrA:    -100,
		RFPwrB:    -100,
		FEBTempA:  KelvinOffset,
		FEBTempB:  KelvinOffset,
		VScale:    999,
		VOff:      999,
		AngOff:    999,
		AOff:      999,
		Collim:    999,
		VPSUAvg:   999,
	}
}

// Temperature converts a temperature sensor voltage (10 mV/K offset 0.5 V) to Celsius.
func Temperature(v float64) float64 { return 100*v - 50 }

// RFPower converts the front end power detector voltage to dBm.
func RFPower(v float64) float64 { return 28.571*v - 90 }

// DecodeAntenna fills a monitor point set from one AntennaSample read.
func DecodeAntenna(raw []float64, antNum int, sim bool, at time.Time) (AntennaMonitor, error) {
	if want := AntennaSample.Len(); len(raw) < want {
		return AntennaMonitor{}, fmt.Errorf("%w: antenna sample has %d values, want %d", ErrShortSample, len(raw), want)
	}

	dig := DecodeDigital(uint32(int64(raw[idxDigital])))

	return AntennaMonitor{
		Sim:          sim,
		AntNum:       antNum,
		Time:         MJD(at),
		AntEl:        raw[idxEl],
		AntCmdEl:     raw[idxCmdEl],
		AntElErr:     raw[idxElErr],
		AntElRaw:     raw[idxElRaw],
		DrvCmd:       dig.DriveCmd,
		DrvAct:       dig.DriveAct,
		DrvState:     int(raw[idxDriveState]),
		AtNorthLim:   dig.AtNorthLimit,
		AtSouthLim:   dig.AtSouthLimit,
		BrakeOn:      dig.BrakeOn,
		MotorTemp:    Temperature(raw[idxMotorTemp]),
		FocusTemp:    Temperature(raw[idxFocusTemp]),
		LNACurrentA:  100 * raw[idxLNACurrentA],
		LNACurrentB:  100 * raw[idxLNACurrentB],
		NoiseAOn:     dig.NoiseAOn,
		NoiseBOn:     dig.NoiseBOn,
		RFPwrA:       RFPower(raw[idxRFPowerA]),
		RFPwrB:       RFPower(raw[idxRFPowerB]),
		FEBCurrentA:  1000 * raw[idxFEBCurrentA],
		FEBCurrentB:  1000 * raw[idxFEBCurrentB],
		LaserVoltsA:  raw[idxLaserVoltsA],
		LaserVoltsB:  raw[idxLaserVoltsB],
		FEBTempA:     Temperature(raw[idxFEBTempA]),
		FEBTempB:     Temperature(raw[idxFEBTempB]),
		PSUVolt:      raw[idxPSUVolt],
		LJTemp:       raw[idxModuleTemp] + KelvinOffset,
		VScale:       raw[idxVScale],
		VOff:         raw[idxVOff],
		AngOff:       raw[idxAngOff],
		AOff:         raw[idxAOff],
		Collim:       raw[idxCollim],
		VPSUAvg:      raw[idxVPSUAvg],
		FanErr:       dig.FanError,
		EmergencyOff: dig.EmergencyOff,
	}, nil
}

// Fields returns the numeric and boolean points keyed by name, for archiving.
func (m AntennaMonitor) Fields() map[string]any {
	return map[string]any{
		"ant_el":        m.AntEl,
		"ant_cmd_el":    m.AntCmdEl,
		"ant_el_err":    m.AntElErr,
		"ant_el_raw":    m.AntElRaw,
		"drv_cmd":       m.DrvCmd,
		"drv_act":       m.DrvAct,
		"drv_state":     m.DrvState,
		"at_north_lim":  m.AtNorthLim,
		"at_south_lim":  m.AtSouthLim,
		"brake_on":      m.BrakeOn,
		"motor_temp":    m.MotorTemp,
		"focus_temp":    m.FocusTemp,
		"lna_current_a": m.LNACurrentA,
		"lna_current_b": m.LNACurrentB,
		"noise_a_on":    m.NoiseAOn,
		"noise_b_on":    m.NoiseBOn,
		"rf_pwr_a":      m.RFPwrA,
		"rf_pwr_b":      m.RFPwrB,
		"feb_current_a": m.FEBCurrentA,
		"feb_current_b": m.FEBCurrentB,
		"laser_volts_a": m.LaserVoltsA,
		"laser_volts_b": m.LaserVoltsB,
		"feb_temp_a":    m.FEBTempA,
		"feb_temp_b":    m.FEBTempB,
		"psu_volt":      m.PSUVolt,
		"lj_temp":       m.LJTemp,
		"v_scale":       m.VScale,
		"v_off":         m.VOff,
		"ang_off":       m.AngOff,
		"a_off":         m.AOff,
		"collim":        m.Collim,
		"v_psu_avg":     m.VPSUAvg,
		"fan_err":       m.FanErr,
		"emergency_off": m.EmergencyOff,
	}
}
