package scheduler

import (
	"sync"
	"time"
)

// timerEntry pins the anchor message of the arrival-confirm prompt so the
// expiry path can edit the same message the Confirm button lives on.
type timerEntry struct {
	timer     *time.Timer
	chatID    int64
	messageID int
}

// TimerRegistry holds the transient confirmation timers guarding
// unconfirmed reservations. It is not persisted: after a restart the
// scheduler's late-fire of notify_start re-establishes the timer.
type TimerRegistry struct {
	mu     sync.Mutex
	timers map[int64]timerEntry
}

func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{timers: make(map[int64]timerEntry)}
}

// Arm starts the confirmation countdown for a reservation. An existing
// timer for the same reservation is replaced. expire runs on its own
// goroutine and races the user's Confirm press; the store's
// compare-and-set decides the winner.
func (r *TimerRegistry) Arm(reservationID, chatID int64, messageID int, timeout time.Duration, expire func(chatID int64, messageID int)) {
	r.mu.Lock()
	if old, ok := r.timers[reservationID]; ok {
		old.timer.Stop()
	}
	r.timers[reservationID] = timerEntry{
		chatID:    chatID,
		messageID: messageID,
		timer: time.AfterFunc(timeout, func() {
			if c, m, ok := r.take(reservationID); ok {
				expire(c, m)
			}
		}),
	}
	r.mu.Unlock()
}

// take removes the entry and returns its anchor. Used by both the expiry
// path and Cancel so only one side proceeds.
func (r *TimerRegistry) take(reservationID int64) (chatID int64, messageID int, ok bool) {
	r.mu.Lock()
	entry, ok := r.timers[reservationID]
	if ok {
		delete(r.timers, reservationID)
	}
	r.mu.Unlock()
	return entry.chatID, entry.messageID, ok
}

// Cancel stops the timer, returning the anchor of the pending prompt.
// ok is false when no timer was armed or expiry already claimed it.
func (r *TimerRegistry) Cancel(reservationID int64) (chatID int64, messageID int, ok bool) {
	r.mu.Lock()
	entry, ok := r.timers[reservationID]
	if ok {
		entry.timer.Stop()
		delete(r.timers, reservationID)
	}
	r.mu.Unlock()
	return entry.chatID, entry.messageID, ok
}

func (r *TimerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
