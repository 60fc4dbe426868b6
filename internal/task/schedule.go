package task

import (
	"time"

	"github.com/gridconnect/gridconnect/internal/constants"
)

// PollSchedule yields the wait between status polls of one session: 1s at first,
// 10s once 10s have passed, 60s once 60s have passed. It never shortens.
type PollSchedule struct {
	start    time.Time
	interval time.Duration
	now      func() time.Time
}

// NewPollSchedule starts a schedule at now().
func NewPollSchedule(now func() time.Time) *PollSchedule {
	if now == nil {
		now = time.Now
	}
	return &PollSchedule{start: now(), interval: constants.InitialPollInterval, now: now}
}

// Next returns the interval to sleep before the next poll.
func (s *PollSchedule) Next() time.Duration {
	elapsed := s.now().Sub(s.start)

	candidate := constants.InitialPollInterval
	switch {
	case elapsed >= constants.LongPollThreshold:
		candidate = constants.LongPollInterval
	case elapsed >= constants.MediumPollThreshold:
		candidate = constants.MediumPollInterval
	}
	if candidate > s.interval {
		s.interval = candidate
	}
	return s.interval
}
