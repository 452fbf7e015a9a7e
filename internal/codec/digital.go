package codec

// Bit positions in the antenna DIO_STATE word.
const (
	bitEmergencyOff = 8
	shiftDriveCmd   = 9
	bitNoiseA       = 11
	bitNoiseB       = 12
	bitBrake        = 13
	shiftDriveAct   = 14
	bitNorthLimit   = 20
	bitSouthLimit   = 21
	bitFanError     = 22
)

// DigitalStatus is the decoded antenna digital status word.
//
// Brake, limit switch and noise diode lines are active low on the
// hardware; the fields here are already in positive logic.
type DigitalStatus struct {
	EmergencyOff bool
	DriveCmd     int
	DriveAct     int
	BrakeOn      bool
	AtNorthLimit bool
	AtSouthLimit bool
	NoiseAOn     bool
	NoiseBOn     bool
	FanError     bool
}

// DecodeDigital unpacks a DIO_STATE word.
func DecodeDigital(w uint32) DigitalStatus {
	return DigitalStatus{
		EmergencyOff: bit(w, bitEmergencyOff),
		DriveCmd:     int((w >> shiftDriveCmd) & 0b11),
		DriveAct:     int((w >> shiftDriveAct) & 0b11),
		BrakeOn:      !bit(w, bitBrake),
		AtNorthLimit: !bit(w, bitNorthLimit),
		AtSouthLimit: !bit(w, bitSouthLimit),
		NoiseAOn:     !bit(w, bitNoiseA),
		NoiseBOn:     !bit(w, bitNoiseB),
		FanError:     bit(w, bitFanError),
	}
}

func bit(w uint32, n uint) bool {
	return (w>>n)&1 == 1
}
