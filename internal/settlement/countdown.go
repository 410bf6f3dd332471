package settlement

import "time"

// Countdown is the remaining time of a trade split for display
type Countdown struct {
	Hours     int
	Minutes   int
	Seconds   int
	Remaining time.Duration
	Expired   bool
}

// Remaining returns createdAt + expireMinutes - now, clamped at zero.
func Remaining(createdAt time.Time, expireMinutes int, now time.Time) time.Duration {
	remaining := createdAt.Add(time.Duration(expireMinutes) * time.Minute).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NewCountdown computes the countdown of a trade at now. Display fields
// round down, so a trade with 0.4s left shows 0:00:00 without being expired.
func NewCountdown(createdAt time.Time, expireMinutes int, now time.Time) Countdown {
	remaining := Remaining(createdAt, expireMinutes, now)
	total := int(remaining / time.Second)

	return Countdown{
		Hours:     total / 3600,
		Minutes:   (total % 3600) / 60,
		Seconds:   total % 60,
		Remaining: remaining,
		Expired:   remaining == 0,
	}
}
