package governor

import "time"

// Clock abstracts time operations so admission and breaker logic can be
// driven deterministically in tests, the way engine/ratelimit.Clock does
// for the teacher's adaptive limiter.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
