package timectrl

import (
	"sync"
	"time"
)

// SimClock is the clock the flight engine sleeps on. Sleep parks the caller
// for d of simulated time; how much wall-clock time that takes depends on
// the implementation.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// Sleep blocks for d of simulation time. It cannot be interrupted.
	Sleep(d time.Duration)
}

// Mode describes how the TimeController maps simulated time to wall time.
type Mode int

const (
	// RealTime sleeps for exactly the simulated duration.
	RealTime Mode = iota
	// Accelerated divides every simulated sleep by Scale.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// TimeController tracks simulation time as sleeps complete and notifies
// registered listeners. It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Mode      Mode
	// Scale is the speed-up factor used in Accelerated mode.
	Scale float64

	// currentTime advances by the simulated duration of every Sleep.
	currentTime time.Time

	listeners []func(time.Time)
}

// NewTimeController constructs a controller. A non-positive scale is
// treated as 1.
func NewTimeController(start time.Time, mode Mode, scale float64) *TimeController {
	if scale <= 0 {
		scale = 1
	}
	return &TimeController{
		StartTime:   start,
		Mode:        mode,
		Scale:       scale,
		currentTime: start,
	}
}

// NewRealTime returns a wall-clock controller starting now.
func NewRealTime() *TimeController {
	return NewTimeController(time.Now().UTC(), RealTime, 1)
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves simulation time to t without sleeping.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// WallDuration returns the wall-clock time a simulated sleep of d takes.
func (tc *TimeController) WallDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if tc.Mode == Accelerated {
		return time.Duration(float64(d) / tc.Scale)
	}
	return d
}

// Sleep blocks for d of simulated time, then advances Now by d and
// notifies listeners. Implements SimClock.
func (tc *TimeController) Sleep(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if wall := tc.WallDuration(d); wall > 0 {
		time.Sleep(wall)
	}

	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(d)
	simTime := tc.currentTime
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(simTime)
	}
}

// AddListener registers a callback invoked after every Sleep with the new
// simulation time.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}
