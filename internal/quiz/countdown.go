package quiz

import (
	"fmt"
	"time"
)

// warnBelow is when the timer turns into its warning state.
const warnBelow = 90 * time.Second

// Countdown is the server-side view of an attempt's timer. It is derived from
// started_at and the quiz limit, so it survives reloads and restarts.
type Countdown struct {
	Deadline time.Time
}

func NewCountdown(startedAt time.Time, limitMinutes int) Countdown {
	return Countdown{Deadline: startedAt.Add(time.Duration(limitMinutes) * time.Minute)}
}

// Remaining is floored at zero and truncated to whole seconds.
func (c Countdown) Remaining(now time.Time) time.Duration {
	d := c.Deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return d.Truncate(time.Second)
}

// Expired is exact; Remaining can read zero during the final second.
func (c Countdown) Expired(now time.Time) bool { return !now.Before(c.Deadline) }

// Clock splits the remaining time into minutes and seconds.
func (c Countdown) Clock(now time.Time) (minutes, seconds int) {
	total := int(c.Remaining(now) / time.Second)
	return total / 60, total % 60
}

func (c Countdown) Warning(now time.Time) bool {
	return c.Remaining(now) < warnBelow
}

// Format renders MM:SS; minutes grow past two digits for long quizzes.
func (c Countdown) Format(now time.Time) string {
	m, s := c.Clock(now)
	return fmt.Sprintf("%02d:%02d", m, s)
}

// TimerView is the JSON shape attached to in-progress attempts.
type TimerView struct {
	Deadline         time.Time `json:"deadline"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Display          string    `json:"display"`
	Warning          bool      `json:"warning"`
	Expired          bool      `json:"expired"`
}

func (c Countdown) View(now time.Time) TimerView {
	return TimerView{
		Deadline:         c.Deadline,
		RemainingSeconds: int(c.Remaining(now) / time.Second),
		Display:          c.Format(now),
		Warning:          c.Warning(now),
		Expired:          c.Expired(now),
	}
}
