package order

import (
	"sync/atomic"
	"time"
)

// DefaultCooldown keeps the latch held briefly after the request settles so
// a double-click straddling the response cannot start a second commit.
const DefaultCooldown = 2 * time.Second

// PlacementGuard makes the place-order side effect fire at most once per
// attempt. The latch is taken synchronously, before any asynchronous work
// starts; a second call while it is held is a no-op, not queued and not an
// error. This closes the window between UI disable-on-click and the request
// actually firing.
type PlacementGuard struct {
	inFlight atomic.Bool
	cooldown time.Duration
}

func NewPlacementGuard(cooldown time.Duration) *PlacementGuard {
	return &PlacementGuard{cooldown: cooldown}
}

// Do runs commit if no other commit is in flight. executed reports whether
// this call ran the commit; err is the commit's own error. The latch clears
// after the commit settles plus the cooldown window, success or failure.
func (g *PlacementGuard) Do(commit func() error) (executed bool, err error) {
	if !g.inFlight.CompareAndSwap(false, true) {
		return false, nil
	}

	err = commit()

	if g.cooldown > 0 {
		time.AfterFunc(g.cooldown, func() { g.inFlight.Store(false) })
	} else {
		g.inFlight.Store(false)
	}
	return true, err
}

// Held reports whether a commit is currently latched.
func (g *PlacementGuard) Held() bool {
	return g.inFlight.Load()
}
