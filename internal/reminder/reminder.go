// Package reminder runs the background task that notifies users about
// upcoming events. It polls an event source on a fixed interval and sends
// formatted summaries through a notifier; it never touches conversation
// state.
package reminder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loomlabs/loom/internal/log"
)

const (
	// DefaultInterval is how often the scheduler polls for upcoming events.
	DefaultInterval = 3 * time.Minute

	// DefaultLookahead is how far ahead an event may start and still
	// trigger a reminder.
	DefaultLookahead = 30 * time.Minute

	maxListedAttendees = 5
)

// Event is one upcoming appointment for a user.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// EventSource lists users who opted into reminders and their upcoming
// events.
type EventSource interface {
	ActiveUsers(ctx context.Context) ([]string, error)
	UpcomingEvents(ctx context.Context, userID string) ([]Event, error)
}

// Notifier delivers a reminder to a user.
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}

// Scheduler polls the source and sends at most one reminder per
// (user, event) pair.
type Scheduler struct {
	source    EventSource
	notifier  Notifier
	logger    log.Logger
	interval  time.Duration
	lookahead time.Duration

	now func() time.Time

	mu   sync.Mutex
	sent map[string]map[string]bool // user id -> event id

	stop chan struct{}
	done chan struct{}
}

// NewScheduler creates a scheduler. Non-positive interval or lookahead fall
// back to the defaults.
func NewScheduler(source EventSource, notifier Notifier, interval, lookahead time.Duration, logger log.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	return &Scheduler{
		source:    source,
		notifier:  notifier,
		logger:    logger,
		interval:  interval,
		lookahead: lookahead,
		now:       time.Now,
		sent:      make(map[string]map[string]bool),
	}
}

// Start launches the polling loop. It returns immediately; Stop shuts the
// loop down and waits for it to exit.
func (s *Scheduler) Start(ctx context.Context) {
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.logger.Info("reminder scheduler started", "interval", s.interval.String())
		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the polling loop.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
	s.logger.Info("reminder scheduler stopped")
}

// Sweep runs one reminder pass over all active users. Failures for one
// user never block the others.
func (s *Scheduler) Sweep(ctx context.Context) {
	users, err := s.source.ActiveUsers(ctx)
	if err != nil {
		s.logger.Error("listing active users failed", "error", err)
		return
	}
	for _, userID := range users {
		if err := s.sweepUser(ctx, userID); err != nil {
			s.logger.Error("reminder sweep failed", "user_id", userID, "error", err)
		}
	}
}

func (s *Scheduler) sweepUser(ctx context.Context, userID string) error {
	events, err := s.source.UpcomingEvents(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing events: %w", err)
	}
	now := s.now()
	for _, ev := range events {
		if ev.ID == "" || s.alreadySent(userID, ev.ID) {
			continue
		}
		until := ev.Start.Sub(now)
		if until < 0 || until > s.lookahead {
			continue
		}
		if err := s.notifier.Notify(ctx, userID, FormatSummary(ev)); err != nil {
			s.logger.Error("sending reminder failed",
				"user_id", userID, "event_id", ev.ID, "error", err)
			continue
		}
		s.markSent(userID, ev.ID)
		s.logger.Info("reminder sent", "user_id", userID, "event_id", ev.ID)
	}
	return nil
}

func (s *Scheduler) alreadySent(userID, eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[userID][eventID]
}

func (s *Scheduler) markSent(userID, eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent[userID] == nil {
		s.sent[userID] = make(map[string]bool)
	}
	s.sent[userID][eventID] = true
}

// FormatSummary renders an event as a reminder message.
func FormatSummary(ev Event) string {
	summary := ev.Summary
	if summary == "" {
		summary = "Untitled Meeting"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Meeting Reminder: %s\n", summary)
	fmt.Fprintf(&b, "Time: %s - %s\n", ev.Start.Format("3:04 PM"), ev.End.Format("3:04 PM"))
	fmt.Fprintf(&b, "Date: %s\n", ev.Start.Format("January 2, 2006"))
	if ev.Description != "" {
		fmt.Fprintf(&b, "Agenda: %s\n", ev.Description)
	}
	if len(ev.Attendees) > 0 {
		b.WriteString("Attendees:\n")
		listed := ev.Attendees
		if len(listed) > maxListedAttendees {
			listed = listed[:maxListedAttendees]
		}
		for _, name := range listed {
			fmt.Fprintf(&b, "- %s\n", name)
		}
		if extra := len(ev.Attendees) - maxListedAttendees; extra > 0 {
			fmt.Fprintf(&b, "... and %d more attendees\n", extra)
		}
	}
	return b.String()
}
