package state

import (
	"testing"

	"github.com/signalsfoundry/route-simulator/internal/logging"
)

type stubMetricsRecorder struct {
	records [][2]int
}

func (r *stubMetricsRecorder) SetRouteCounts(routes, waypoints int) {
	r.records = append(r.records, [2]int{routes, waypoints})
}

func (r *stubMetricsRecorder) last() [2]int {
	if len(r.records) == 0 {
		return [2]int{}
	}
	return r.records[len(r.records)-1]
}

func newVehicleForTest(t *testing.T, opts ...Option) *Vehicle {
	t.Helper()
	v := NewVehicle(append([]Option{WithLogger(logging.Noop())}, opts...)...)
	t.Cleanup(v.Close)
	return v
}
