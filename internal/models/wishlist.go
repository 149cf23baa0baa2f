package models

import (
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities for listing, high first
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// ParsePriority accepts any casing and falls back to medium
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

type WishlistItem struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CardName  string    `json:"card_name" gorm:"not null;index"`
	SetName   string    `json:"set_name"`
	Priority  Priority  `json:"priority" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
}

func (WishlistItem) TableName() string { return "wishlist" }

type NewWishlistItem struct {
	CardName string   `json:"card_name" validate:"required,notblank"`
	SetName  string   `json:"set_name"`
	Priority Priority `json:"priority" validate:"omitempty,oneof=low medium high"`
}

type WishlistPatch struct {
	CardName *string   `json:"card_name" validate:"omitempty,notblank"`
	SetName  *string   `json:"set_name"`
	Priority *Priority `json:"priority" validate:"omitempty,oneof=low medium high"`
}
