package voice

import (
	"time"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/clock"
)

// DefaultCooldown suppresses repeats of the same announcement.
const DefaultCooldown = 10 * time.Second

// Announcer gates one-off announcements (arrival, rerouting) so that the same
// text is not spoken again within the cooldown when upstream state toggles
// rapidly. It is not safe for concurrent use.
type Announcer struct {
	clock    clock.Clock
	cooldown time.Duration
	lastSaid map[string]time.Time
}

// NewAnnouncer creates an Announcer. A nil clock uses the system clock.
func NewAnnouncer(c clock.Clock, cooldown time.Duration) *Announcer {
	if c == nil {
		c = clock.Real{}
	}
	return &Announcer{
		clock:    c,
		cooldown: cooldown,
		lastSaid: make(map[string]time.Time),
	}
}

// Speak reports whether message should be emitted now, recording it if so.
func (a *Announcer) Speak(message string) bool {
	if message == "" {
		return false
	}
	now := a.clock.Now()

	for text, at := range a.lastSaid {
		if now.Sub(at) >= a.cooldown {
			delete(a.lastSaid, text)
		}
	}

	if _, recent := a.lastSaid[message]; recent {
		return false
	}
	a.lastSaid[message] = now
	return true
}

// Reset forgets all previous announcements.
func (a *Announcer) Reset() {
	clear(a.lastSaid)
}
