package codec

import (
	"fmt"
	"time"
)

// BackendAntennas is the number of antennas instrumented by one backend module.
const BackendAntennas = 10

// backendChannels is the number of analog channels per antenna on a backend module.
const backendChannels = 8

// Positions within BackendSample.
const (
	idxPSUVoltage  = 0
	idxPSUCurrent  = 1
	idxBackendTemp = 2
	idxAnalogStart = 3
)

// BackendMonitor is the monitor point set published for one antenna's
// backend signal chain. Field order is the publication order.
type BackendMonitor struct {
	AntNum      int     `json:"ant_num"`
	Time        float64 `json:"time"`
	PDCurrentA  float64 `json:"pd_current_a"`
	BEBCurrentA float64 `json:"beb_current_a"`
	IFPwrA      float64 `json:"if_pwr_a"`
	PDCurrentB  float64 `json:"pd_current_b"`
	BEBCurrentB float64 `json:"beb_current_b"`
	IFPwrB      float64 `json:"if_pwr_b"`
	LOMon       float64 `json:"lo_mon"`
	BEBTemp     float64 `json:"beb_temp"`
	PSUVoltage  float64 `json:"psu_voltage"`
	PSUCurrent  float64 `json:"psu_current"`
	LJTemp      float64 `json:"lj_temp"`
}

// IFPower converts the IF power detector voltage to dBm.
func IFPower(v float64) float64 { return 1000*v/35.0 - 90.0 }

// DecodeBackend splits one BackendSample read into the sets for antennas
// firstAnt .. firstAnt+9.
//
// The module temperature is copied unconverted (Kelvin) into every set.
func DecodeBackend(raw []float64, firstAnt int, at time.Time) ([BackendAntennas]BackendMonitor, error) {
	var out [BackendAntennas]BackendMonitor
	if want := BackendSample.Len(); len(raw) < want {
		return out, fmt.Errorf("%w: backend sample has %d values, want %d", ErrShortSample, len(raw), want)
	}

	ts := MJD(at)
	psuV := raw[idxPSUVoltage]
	psuI := 1000 * raw[idxPSUCurrent]
	ljTemp := raw[idxBackendTemp]

	for i := range out {
		ch := raw[idxAnalogStart+i*backendChannels : idxAnalogStart+(i+1)*backendChannels]
		out[i] = BackendMonitor{
			AntNum:      firstAnt + i,
			Time:        ts,
			PDCurrentA:  ch[0],
			PDCurrentB:  ch[1],
			IFPwrA:      IFPower(ch[2]),
			IFPwrB:      IFPower(ch[3]),
			LOMon:       ch[4],
			BEBCurrentA: 100 * ch[5],
			BEBCurrentB: 100 * ch[6],
			BEBTemp:     Temperature(ch[7]),
			PSUVoltage:  psuV,
			PSUCurrent:  psuI,
			LJTemp:      ljTemp,
		}
	}
	return out, nil
}

// Fields returns the numeric points keyed by name, for archiving.
func (m BackendMonitor) Fields() map[string]any {
	return map[string]any{
		"pd_current_a":  m.PDCurrentA,
		"beb_current_a": m.BEBCurrentA,
		"if_pwr_a":      m.IFPwrA,
		"pd_current_b":  m.PDCurrentB,
		"beb_current_b": m.BEBCurrentB,
		"if_pwr_b":      m.IFPwrB,
		"lo_mon":        m.LOMon,
		"beb_temp":      m.BEBTemp,
		"psu_voltage":   m.PSUVoltage,
		"psu_current":   m.PSUCurrent,
		"lj_temp":       m.LJTemp,
	}
}
