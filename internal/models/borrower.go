package models

import "time"

// Borrower is mutable reference data. Lending records keep their own
// snapshot of the name, so renaming a borrower never rewrites history.
type Borrower struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"not null;index"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

func (Borrower) TableName() string { return "borrowers" }

// BorrowerInfo identifies a borrower by name for lending; email and phone
// are only used when the borrower has to be created. Contact details are
// free-form text.
type BorrowerInfo struct {
	Name  string `json:"name" validate:"required,notblank"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type BorrowerPatch struct {
	Name  *string `json:"name" validate:"omitempty,notblank"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}
