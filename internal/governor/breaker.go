package governor

import "time"

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// sourceState is the per-source admission state: a token bucket enforcing
// the minimum fetch interval plus a circuit breaker tripped by
// consecutive failures. Shape mirrors engine/ratelimit's domainState,
// generalized from per-domain HTTP pacing to per-source fetch pacing.
type sourceState struct {
	lastActivity time.Time
	tokens       float64
	fillRate     float64 // tokens per second
	lastRefill   time.Time

	breaker          circuitState
	nextAttempt      time.Time
	consecutiveFails int
	halfOpenSuccess  int
}

func newSourceState(now time.Time, minInterval time.Duration) *sourceState {
	rate := 1.0
	if minInterval > 0 {
		rate = 1.0 / minInterval.Seconds()
	}
	return &sourceState{lastActivity: now, tokens: 1, fillRate: rate, lastRefill: now}
}

// planAdmission returns the wait duration before the next token is
// available, or an error if the breaker is open.
func (s *sourceState) planAdmission(now time.Time, tripThreshold int, cooldown time.Duration) (time.Duration, error) {
	s.lastActivity = now
	if s.breaker == circuitOpen {
		if now.After(s.nextAttempt) {
			s.breaker = circuitHalfOpen
			s.halfOpenSuccess = 0
		} else {
			return 0, ErrCircuitOpen
		}
	}
	elapsed := now.Sub(s.lastRefill).Seconds()
	if elapsed > 0 {
		s.tokens += elapsed * s.fillRate
		if s.tokens > 1 {
			s.tokens = 1
		}
		s.lastRefill = now
	}
	if s.tokens >= 1 {
		s.tokens -= 1
		return 0, nil
	}
	wait := (1 - s.tokens) / s.fillRate
	return time.Duration(wait * float64(time.Second)), nil
}

// recordResult applies fetch feedback to the breaker: consecutive
// failures trip the circuit open for `cooldown`; a success in half-open
// state closes it after one successful probe.
func (s *sourceState) recordResult(now time.Time, ok bool, tripThreshold int, cooldown time.Duration) {
	s.lastActivity = now
	if ok {
		s.consecutiveFails = 0
		if s.breaker == circuitHalfOpen {
			s.halfOpenSuccess++
			if s.halfOpenSuccess >= 1 {
				s.breaker = circuitClosed
			}
		}
		return
	}
	s.consecutiveFails++
	if s.breaker == circuitHalfOpen {
		s.breaker = circuitOpen
		s.nextAttempt = now.Add(cooldown)
		return
	}
	if tripThreshold > 0 && s.consecutiveFails >= tripThreshold {
		s.breaker = circuitOpen
		s.nextAttempt = now.Add(cooldown)
	}
}

func (s *sourceState) stateLabel() string {
	switch s.breaker {
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
