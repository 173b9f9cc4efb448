// Package logger squashes runs of identical log lines. Cache hits fire once
// per retailer per request, which floods the log under load; repeats are
// collapsed into a single line with a count.
package logger

import (
	"fmt"
	"log"
	"sync"
	"time"
)

var squash = &squasher{holdFor: 2 * time.Second}

type squasher struct {
	mu      sync.Mutex
	last    string
	repeats int
	holdFor time.Duration
	timer   *time.Timer
}

// Dedup logs like log.Printf, except consecutive identical messages are held
// back and emitted once with a repeat count after a short quiet period.
func Dedup(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	squash.mu.Lock()
	defer squash.mu.Unlock()

	if msg != squash.last {
		squash.emit()
		squash.last = msg
	}
	squash.repeats++
	squash.rearm()
}

func (s *squasher) emit() {
	switch {
	case s.repeats == 1:
		log.Print(s.last)
	case s.repeats > 1:
		log.Printf("%s (repeated %d times)", s.last, s.repeats)
	}
	s.repeats = 0
	s.last = ""
}

func (s *squasher) rearm() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.holdFor, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.emit()
	})
}
