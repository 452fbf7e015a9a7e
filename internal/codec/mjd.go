package codec

import (
	"math"
	"time"
)

// unixEpochMJD is the modified Julian day of 1970-01-01T00:00:00Z.
const unixEpochMJD = 40587.0

// MJD returns t as a fractional modified Julian day rounded to 8 decimals
// (about one millisecond of resolution).
func MJD(t time.Time) float64 {
	days := float64(t.UnixNano()) / float64(24*time.Hour)
	return math.Round((unixEpochMJD+days)*1e8) / 1e8
}

// MJDTime converts a modified Julian day back to wall-clock time.
func MJDTime(mjd float64) time.Time {
	ns := (mjd - unixEpochMJD) * float64(24*time.Hour)
	return time.Unix(0, int64(math.Round(ns))).UTC()
}
