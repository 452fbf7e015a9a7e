package codec

import (
	"encoding/json"
	"fmt"
)

type calibrationDoc struct {
	CalTable []float64 `json:"cal_table"`
}

// ParseCalibration decodes a {"cal_table": [...]} document.
func ParseCalibration(data []byte) ([]float64, error) {
	var doc calibrationDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if doc.CalTable == nil {
		return nil, fmt.Errorf("%w: missing cal_table", ErrMalformed)
	}
	return doc.CalTable, nil
}

// EncodeCalibration builds a calibration document.
func EncodeCalibration(table []float64) ([]byte, error) {
	return json.Marshal(calibrationDoc{CalTable: table})
}
