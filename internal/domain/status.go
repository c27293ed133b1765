package domain

import (
	"sync"
	"time"
)

// FormStatus display flag for a form action.
type FormStatus string

const (
	StatusIdle    FormStatus = "idle"
	StatusSaving  FormStatus = "saving"
	StatusSuccess FormStatus = "success"
	StatusError   FormStatus = "error"
)

// StatusIndicator holds a FormStatus and resets success/error back to idle
// after a fixed delay, whether or not anybody looked at it.
type StatusIndicator struct {
	mu      sync.Mutex
	status  FormStatus
	message string
	delay   time.Duration
	timer   *time.Timer
	gen     uint64
}

// NewStatusIndicator creates an idle indicator with the given reset delay.
func NewStatusIndicator(resetDelay time.Duration) *StatusIndicator {
	return &StatusIndicator{status: StatusIdle, delay: resetDelay}
}

// Saving marks a request in flight.
func (s *StatusIndicator) Saving() {
	s.set(StatusSaving, "", false)
}

// Succeed marks success with an optional message and arms the reset timer.
func (s *StatusIndicator) Succeed(message string) {
	s.set(StatusSuccess, message, true)
}

// Fail marks failure with the display message and arms the reset timer.
func (s *StatusIndicator) Fail(message string) {
	s.set(StatusError, message, true)
}

// Current returns the status and message.
func (s *StatusIndicator) Current() (FormStatus, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.message
}

// Stop cancels a pending reset.
func (s *StatusIndicator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *StatusIndicator) set(status FormStatus, message string, autoReset bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.status = status
	s.message = message

	if !autoReset || s.delay <= 0 {
		return
	}
	gen := s.gen
	s.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// a newer transition owns the indicator now
		if s.gen != gen {
			return
		}
		s.status = StatusIdle
		s.message = ""
		s.timer = nil
	})
}
