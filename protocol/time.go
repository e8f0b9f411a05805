package protocol

import "fmt"

// Time is a simulated timestamp, represented as a count of nanoseconds
// since the federation epoch. Using an integer rather than a float avoids
// the drift that would otherwise accumulate across millions of grants.
type Time int64

const (
	TimeZero    Time = 0
	TimeEpsilon Time = 1
	TimeMaxVal  Time = 1<<63 - 1
	TimeMinVal  Time = -(1 << 63)
)

// TimeMax and TimeMin mark "never" and "always ready" respectively; they
// are what a federate with no further events reports as its next time.
var (
	TimeMax = TimeMaxVal
	TimeMin = TimeMinVal
)

// Add saturates instead of wrapping, since a coordinator comparing two
// "effectively infinite" times must still see them as equal to TimeMax.
func (t Time) Add(d Time) Time {
	if t >= TimeMax-d && d > 0 {
		return TimeMax
	}
	if t <= TimeMin-d && d < 0 {
		return TimeMin
	}
	return t + d
}

func (t Time) String() string {
	if t == TimeMax {
		return "time_max"
	}
	return fmt.Sprintf("%.9f", float64(t)/1e9)
}

// MinTime returns the earlier of the two times.
func MinTime(a, b Time) Time {
	if a < b {
		return a
	}
	return b
}

// MaxTime returns the later of the two times.
func MaxTime(a, b Time) Time {
	if a > b {
		return a
	}
	return b
}

func fmtHandle(fed GlobalFederateId, h InterfaceHandle) string {
	return fmt.Sprintf("%d:%d", int32(fed), int32(h))
}
