package archive

import (
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dsa110/dsa110-hwmc/internal/session"
)

// Measurement names.
const (
	MeasurementAntenna = "ant_mon"
	MeasurementBackend = "beb_mon"
)

// Writer queues points without blocking. *influxdb.Client satisfies it.
type Writer interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// Archive is a session.Observer that forwards publications to a Writer.
//
// Thread Safety: Observe may be called from every session goroutine.
type Archive struct {
	w    Writer
	site string

	written atomic.Uint64
	dropped atomic.Uint64
}

// New creates an archive writing to w. site is added as a tag when set.
func New(w Writer, site string) *Archive {
	return &Archive{w: w, site: site}
}

// Observe implements session.Observer.
func (a *Archive) Observe(p session.Publication) {
	if p.Startup || len(p.Fields) == 0 {
		return
	}

	var measurement string
	switch p.Role {
	case session.RoleAntenna:
		measurement = MeasurementAntenna
	case session.RoleBackend:
		measurement = MeasurementBackend
	default:
		return
	}

	fields := make(map[string]any, len(p.Fields))
	for k, v := range p.Fields {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			a.dropped.Add(1)
			continue
		}
		fields[k] = v
	}
	if len(fields) == 0 {
		return
	}

	tags := map[string]string{"ant_num": strconv.Itoa(p.AntNum)}
	if a.site != "" {
		tags["site"] = a.site
	}
	a.w.WritePoint(measurement, tags, fields, p.Time)
	a.written.Add(1)
}

// Stats returns the number of points written and the number of
// non-finite fields dropped.
func (a *Archive) Stats() (written, dropped uint64) {
	return a.written.Load(), a.dropped.Load()
}
