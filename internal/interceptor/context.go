package interceptor

import "time"

// RequestContext is the state the interceptor carries across the phases of
// a single request. It is created by Access and owned by that request alone.
type RequestContext struct {
	CorrelationID  string
	Start          time.Time
	ClientIP       string
	DurationMillis int64

	measured bool
}

// Measured reports whether HeaderFilter has computed DurationMillis.
func (rc *RequestContext) Measured() bool {
	return rc != nil && rc.measured
}

// Clock supplies the time readings used for latency measurement.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// elapsedMillis returns the milliseconds between start and now, clamped to
// zero when the clock stepped backwards.
func elapsedMillis(start, now time.Time) int64 {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}
