package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codyseavey/tcg-inventory/internal/models"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Reminder
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, r Reminder) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, r)
	return n.err
}

func TestReminderChecks(t *testing.T) {
	store, clock := newTestStore(t)
	lending := NewLendingService(store)
	ctx := context.Background()
	now := clock.Now()

	lend := func(name, borrower string, due time.Time) {
		t.Helper()
		card := addCard(t, store, models.NewCard{Name: name})
		if _, err := lending.LendCards(ctx, []uint{card.ID}, models.BorrowerInfo{Name: borrower}, due); err != nil {
			t.Fatalf("LendCards(%s) error = %v", name, err)
		}
	}
	lend("Card A", "Alice", now.Add(2*time.Hour))
	lend("Card B", "Bob", now.Add(-4*24*time.Hour))
	lend("Card C", "Carol", now.Add(3*time.Hour))
	lend("Card D", "Dana", now.Add(3*24*time.Hour))
	clock.Advance(2*time.Hour + 30*time.Minute)

	notifier := &recordingNotifier{}
	svc := NewReminderService(NewQueryService(store), notifier, time.Minute, 3)

	sent, err := svc.CheckOverdue(ctx)
	if err != nil {
		t.Fatalf("CheckOverdue() error = %v", err)
	}
	if len(sent) != 2 || len(notifier.sent) != 2 {
		t.Fatalf("sent %d reminders, notifier got %d, want 2", len(sent), len(notifier.sent))
	}
	if sent[0].Kind != ReminderOverdue || sent[0].Title != "1 card overdue" || sent[0].Body != "Card A - Alice" {
		t.Errorf("overdue reminder = %+v", sent[0])
	}
	if sent[1].Kind != ReminderLongOverdue || sent[1].Body != "Card B - 4 days overdue (Bob)" {
		t.Errorf("long overdue reminder = %+v", sent[1])
	}
	if !svc.LastCheck().Equal(clock.Now()) {
		t.Errorf("LastCheck() = %v, want %v", svc.LastCheck(), clock.Now())
	}

	due, err := svc.DueTomorrow(ctx)
	if err != nil {
		t.Fatalf("DueTomorrow() error = %v", err)
	}
	if len(due) != 1 || due[0].Body != "Card C borrowed by Carol is due tomorrow" {
		t.Errorf("DueTomorrow() = %+v, want only Card C", due)
	}

	// Two hours later Cards A and C are both more than an hour past due
	clock.Advance(2 * time.Hour)
	sent, err = svc.CheckOverdue(ctx)
	if err != nil {
		t.Fatalf("CheckOverdue() error = %v", err)
	}
	if len(sent) != 1 || sent[0].Kind != ReminderLongOverdue {
		t.Errorf("second check sent %+v, want only the long overdue batch", sent)
	}
}

func TestReminderNotifierFailureIsNotFatal(t *testing.T) {
	store, clock := newTestStore(t)
	card := addCard(t, store, models.NewCard{Name: "Eevee"})
	if _, err := NewLendingService(store).LendCards(context.Background(), []uint{card.ID},
		models.BorrowerInfo{Name: "Alice"}, clock.Now().Add(-10*time.Minute)); err != nil {
		t.Fatalf("LendCards() error = %v", err)
	}

	notifier := &recordingNotifier{err: errors.New("mailbox full")}
	svc := NewReminderService(NewQueryService(store), notifier, 0, 0)
	sent, err := svc.CheckOverdue(context.Background())
	if err != nil {
		t.Fatalf("CheckOverdue() error = %v", err)
	}
	if len(sent) != 1 || len(notifier.sent) != 1 {
		t.Errorf("sent = %+v", sent)
	}
}

func TestNewReminderServiceDefaults(t *testing.T) {
	store, _ := newTestStore(t)
	svc := NewReminderService(NewQueryService(store), nil, 0, -1)
	if _, ok := svc.notifier.(LogNotifier); !ok {
		t.Errorf("notifier = %T, want LogNotifier", svc.notifier)
	}
	if svc.checkInterval != 5*time.Minute || svc.longOverdueDays != 3 {
		t.Errorf("interval = %v longOverdueDays = %d, want 5m and 3", svc.checkInterval, svc.longOverdueDays)
	}
}

func TestReminderStartStopsWithContext(t *testing.T) {
	store, _ := newTestStore(t)
	notifier := &recordingNotifier{}
	svc := NewReminderService(NewQueryService(store), notifier, time.Hour, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for svc.LastCheck().IsZero() {
		select {
		case <-deadline:
			t.Fatal("Start() did not run an initial check")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func TestSummarize(t *testing.T) {
	items := make([]models.EnrichedLending, 5)
	for i := range items {
		items[i].BorrowerName = fmt.Sprintf("b%d", i)
	}
	items[0].Card = &models.Card{Name: "Zubat"}

	got := summarize(items, 3, func(l models.EnrichedLending) string {
		return lendingCardName(l, "?") + "/" + l.BorrowerName
	})
	want := strings.Join([]string{"Zubat/b0", "?/b1", "?/b2", "...and 2 more"}, "\n")
	if got != want {
		t.Errorf("summarize() = %q, want %q", got, want)
	}
	if got := summarize(items[:2], 3, func(l models.EnrichedLending) string { return l.BorrowerName }); got != "b0\nb1" {
		t.Errorf("summarize(2 items) = %q", got)
	}
	if cardCount(1) != "1 card" || cardCount(4) != "4 cards" {
		t.Errorf("cardCount() = %q, %q", cardCount(1), cardCount(4))
	}
}
