package codec

// Layout describes one batched multi-name register read: each name is read
// Counts[i] consecutive times and the values are concatenated in order.
type Layout struct {
	Names  []string
	Counts []int
}

// Len returns the number of values the read produces.
func (l Layout) Len() int {
	n := 0
	for _, c := range l.Counts {
		n += c
	}
	return n
}

// AntennaSample is the per-cycle read for an antenna module.
//
//	AIN0..AIN13            analog front end and drive sensors
//	TEMPERATURE_DEVICE_K   module temperature
//	DIO_STATE              digital status word
//	USER_RAM1_F32 x10      values published by the drive script
//	USER_RAM1_U16 x2       drive state
var AntennaSample = Layout{
	Names:  []string{"AIN0", "TEMPERATURE_DEVICE_K", "DIO_STATE", "USER_RAM1_F32", "USER_RAM1_U16"},
	Counts: []int{14, 1, 1, 10, 2},
}

// BackendSample is the per-cycle read for a backend module: two shared
// power supply channels, the module temperature, then eight channels for
// each of the ten antennas served.
var BackendSample = Layout{
	Names:  []string{"AIN0", "TEMPERATURE_DEVICE_K", "AIN48"},
	Counts: []int{2, 1, BackendAntennas * backendChannels},
}
