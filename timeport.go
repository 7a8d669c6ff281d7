package oauthclient

import "time"

// TimeSource abstracts the wall clock so tests can run the refresh
// scheduler's timers at a scaled-down rate instead of waiting for real
// expirations.
type TimeSource interface {
	Now() time.Time
	// IntervalFromNowTo returns the duration between Now() and t. It must
	// never return a negative duration; callers treat a non-positive
	// result as "already due".
	IntervalFromNowTo(t time.Time) time.Duration
}

type systemTimeSource struct{}

// NewSystemTimeSource returns a TimeSource backed by the real clock.
func NewSystemTimeSource() TimeSource { return systemTimeSource{} }

func (systemTimeSource) Now() time.Time { return time.Now() }

func (s systemTimeSource) IntervalFromNowTo(t time.Time) time.Duration {
	d := t.Sub(s.Now())
	if d < 0 {
		return 0
	}
	return d
}

// ScaledTimeSource wraps another TimeSource and scales every computed
// interval by Scale, so a production 2-hour back-off ceiling can be driven
// through in milliseconds during a test.
type ScaledTimeSource struct {
	Underlying TimeSource
	Scale      float64
}

func (s ScaledTimeSource) Now() time.Time { return s.Underlying.Now() }

func (s ScaledTimeSource) IntervalFromNowTo(t time.Time) time.Duration {
	d := s.Underlying.IntervalFromNowTo(t)
	scaled := time.Duration(float64(d) * s.Scale)
	if scaled < 0 {
		return 0
	}
	return scaled
}

// Timer is a handle to a scheduled one-shot callback. *time.Timer already
// satisfies this interface.
type Timer interface {
	Stop() bool
}

// TimerService schedules one-shot work without the caller reaching for
// time.AfterFunc directly, so tests can substitute a fake that fires
// callbacks on demand instead of after a real delay.
type TimerService interface {
	Schedule(d time.Duration, f func()) Timer
}

type realTimerService struct{}

// NewRealTimerService returns a TimerService backed by time.AfterFunc.
func NewRealTimerService() TimerService { return realTimerService{} }

func (realTimerService) Schedule(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
