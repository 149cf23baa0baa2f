package models

import "time"

type LendingStatus string

const (
	LendingActive   LendingStatus = "active"
	LendingReturned LendingStatus = "returned"
)

type LendingRecord struct {
	ID                 uint          `json:"id" gorm:"primaryKey;autoIncrement"`
	CardID             uint          `json:"card_id" gorm:"not null;index"`
	BorrowerID         uint          `json:"borrower_id" gorm:"index"`
	BorrowerName       string        `json:"borrower_name" gorm:"index"`
	LendDate           time.Time     `json:"lend_date" gorm:"index"`
	ExpectedReturnDate time.Time     `json:"expected_return_date" gorm:"index"`
	ActualReturnDate   *time.Time    `json:"actual_return_date" gorm:"index"`
	Status             LendingStatus `json:"status" gorm:"not null;index"`
}

func (LendingRecord) TableName() string { return "lending" }

// IsOverdue reports whether an active lending is past its expected return date
func (l *LendingRecord) IsOverdue(now time.Time) bool {
	return l.Status == LendingActive && l.ExpectedReturnDate.Before(now)
}

// DaysOverdue is the number of whole days past the expected return date
func (l *LendingRecord) DaysOverdue(now time.Time) int {
	return WholeDays(now.Sub(l.ExpectedReturnDate))
}

// EnrichedLending joins a lending record with its card and borrower at read time
type EnrichedLending struct {
	LendingRecord
	Card        *Card     `json:"card"`
	Borrower    *Borrower `json:"borrower"`
	DaysOverdue int       `json:"days_overdue,omitempty"`
}

// WholeDays floors a duration to whole days. Negative durations floor
// towards negative infinity.
func WholeDays(d time.Duration) int {
	days := d / (24 * time.Hour)
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return int(days)
}
