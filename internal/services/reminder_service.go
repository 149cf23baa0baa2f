package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/codyseavey/tcg-inventory/internal/models"
)

// Notifier delivers reminder batches to the user
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

type ReminderKind string

const (
	ReminderOverdue     ReminderKind = "overdue"
	ReminderLongOverdue ReminderKind = "long_overdue"
	ReminderDueTomorrow ReminderKind = "due_tomorrow"
)

// Reminder is one notification about a batch of lendings
type Reminder struct {
	Kind  ReminderKind             `json:"kind"`
	Title string                   `json:"title"`
	Body  string                   `json:"body"`
	Items []models.EnrichedLending `json:"items"`
}

// LogNotifier writes reminders to the standard logger
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, r Reminder) error {
	log.Printf("Reminder: %s\n%s", r.Title, r.Body)
	return nil
}

// ReminderService periodically checks for overdue lendings
type ReminderService struct {
	queries          *QueryService
	notifier         Notifier
	checkInterval    time.Duration
	longOverdueDays  int
	newlyOverdueSpan time.Duration

	mu        sync.RWMutex
	lastCheck time.Time
}

// NewReminderService creates a reminder service. A nil notifier logs.
func NewReminderService(queries *QueryService, notifier Notifier, interval time.Duration, longOverdueDays int) *ReminderService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if longOverdueDays <= 0 {
		longOverdueDays = 3
	}
	return &ReminderService{
		queries:          queries,
		notifier:         notifier,
		checkInterval:    interval,
		longOverdueDays:  longOverdueDays,
		newlyOverdueSpan: time.Hour,
	}
}

// Start runs a check immediately and then on every interval until ctx is done
func (s *ReminderService) Start(ctx context.Context) {
	log.Printf("Reminder service started: checking overdue cards every %v", s.checkInterval)

	s.runCheck(ctx)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reminder service stopping...")
			return
		case <-ticker.C:
			s.runCheck(ctx)
		}
	}
}

func (s *ReminderService) runCheck(ctx context.Context) {
	if _, err := s.CheckOverdue(ctx); err != nil {
		log.Printf("Reminder service: failed to check overdue items: %v", err)
	}
}

// CheckOverdue sends the newly overdue and long overdue batches and returns
// the reminders that were sent.
func (s *ReminderService) CheckOverdue(ctx context.Context) ([]Reminder, error) {
	overdue, err := s.queries.OverdueItems(ctx)
	if err != nil {
		return nil, err
	}
	now := s.queries.store.Now()

	s.mu.Lock()
	s.lastCheck = now
	s.mu.Unlock()

	var newly, long []models.EnrichedLending
	for _, item := range overdue {
		if now.Sub(item.ExpectedReturnDate) < s.newlyOverdueSpan {
			newly = append(newly, item)
		}
		if item.DaysOverdue >= s.longOverdueDays {
			long = append(long, item)
		}
	}

	var sent []Reminder
	if len(newly) > 0 {
		sent = append(sent, Reminder{
			Kind:  ReminderOverdue,
			Title: fmt.Sprintf("%s overdue", cardCount(len(newly))),
			Body:  summarize(newly, 3, func(l models.EnrichedLending) string {
				return fmt.Sprintf("%s - %s", lendingCardName(l, "Unknown card"), l.BorrowerName)
			}),
			Items: newly,
		})
	}
	if len(long) > 0 {
		sent = append(sent, Reminder{
			Kind:  ReminderLongOverdue,
			Title: fmt.Sprintf("%s long overdue", cardCount(len(long))),
			Body:  summarize(long, 2, func(l models.EnrichedLending) string {
				return fmt.Sprintf("%s - %d days overdue (%s)", lendingCardName(l, "Unknown"), l.DaysOverdue, l.BorrowerName)
			}),
			Items: long,
		})
	}
	for _, r := range sent {
		if err := s.notifier.Notify(ctx, r); err != nil {
			log.Printf("Reminder service: failed to send %s reminder: %v", r.Kind, err)
		}
	}
	return sent, nil
}

// DueTomorrow returns a reminder for every active lending due within the
// next day, without sending it.
func (s *ReminderService) DueTomorrow(ctx context.Context) ([]Reminder, error) {
	active, err := s.queries.ActiveLendings(ctx)
	if err != nil {
		return nil, err
	}
	now := s.queries.store.Now()

	var out []Reminder
	for _, l := range active {
		until := l.ExpectedReturnDate.Sub(now)
		if until <= 0 || until > 24*time.Hour {
			continue
		}
		out = append(out, Reminder{
			Kind:  ReminderDueTomorrow,
			Title: "Card return reminder",
			Body:  fmt.Sprintf("%s borrowed by %s is due tomorrow", lendingCardName(l, "Card"), l.BorrowerName),
			Items: []models.EnrichedLending{l},
		})
	}
	return out, nil
}

// LastCheck returns when overdue items were last checked
func (s *ReminderService) LastCheck() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCheck
}

func cardCount(n int) string {
	if n == 1 {
		return "1 card"
	}
	return fmt.Sprintf("%d cards", n)
}

func lendingCardName(l models.EnrichedLending, fallback string) string {
	if l.Card == nil {
		return fallback
	}
	return l.Card.Name
}

func summarize(items []models.EnrichedLending, limit int, line func(models.EnrichedLending) string) string {
	lines := make([]string, 0, limit+1)
	for i, item := range items {
		if i == limit {
			lines = append(lines, fmt.Sprintf("...and %d more", len(items)-limit))
			break
		}
		lines = append(lines, line(item))
	}
	return strings.Join(lines, "\n")
}
