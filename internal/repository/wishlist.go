package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/models"
)

var wishlistScope = []database.Collection{database.Wishlist}

type WishlistRepository struct {
	base
}

func NewWishlistRepository(store *database.Store) *WishlistRepository {
	return &WishlistRepository{base: base{store: store}}
}

func (r *WishlistRepository) With(tx *gorm.DB) *WishlistRepository {
	return &WishlistRepository{base: r.bind(tx)}
}

func (r *WishlistRepository) Add(ctx context.Context, in models.NewWishlistItem) (*models.WishlistItem, error) {
	if err := models.Validate(in); err != nil {
		return nil, err
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	item := &models.WishlistItem{
		CardName: strings.TrimSpace(in.CardName),
		SetName:  in.SetName,
		Priority: priority,
	}
	err := r.write(ctx, wishlistScope, func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return fmt.Errorf("failed to add wishlist item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *WishlistRepository) Update(ctx context.Context, id uint, patch models.WishlistPatch) (*models.WishlistItem, error) {
	if err := models.Validate(patch); err != nil {
		return nil, err
	}
	var item models.WishlistItem
	err := r.write(ctx, wishlistScope, func(tx *gorm.DB) error {
		if err := first(tx, &item, "Wishlist item", id); err != nil {
			return err
		}
		var columns []string
		if patch.CardName != nil {
			item.CardName = strings.TrimSpace(*patch.CardName)
			columns = append(columns, "card_name")
		}
		if patch.SetName != nil {
			item.SetName = *patch.SetName
			columns = append(columns, "set_name")
		}
		if patch.Priority != nil {
			item.Priority = *patch.Priority
			columns = append(columns, "priority")
		}
		if len(columns) == 0 {
			return nil
		}
		return tx.Model(&item).Select(columns).Updates(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *WishlistRepository) Get(ctx context.Context, id uint) (*models.WishlistItem, error) {
	var item models.WishlistItem
	if err := first(r.read(ctx), &item, "Wishlist item", id); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *WishlistRepository) Delete(ctx context.Context, id uint) error {
	return r.write(ctx, wishlistScope, func(tx *gorm.DB) error {
		if err := first(tx, &models.WishlistItem{}, "Wishlist item", id); err != nil {
			return err
		}
		return tx.Delete(&models.WishlistItem{}, id).Error
	})
}

// FindByCardName returns the first item for this card name, or nil
func (r *WishlistRepository) FindByCardName(ctx context.Context, name string) (*models.WishlistItem, error) {
	var item models.WishlistItem
	found, err := findOne(r.read(ctx).Where("card_name = ?", name).Order("id"), &item)
	if err != nil || !found {
		return nil, err
	}
	return &item, nil
}

// List returns items by priority (high first), then oldest first
func (r *WishlistRepository) List(ctx context.Context) ([]models.WishlistItem, error) {
	var items []models.WishlistItem
	if err := r.read(ctx).Order("created_at, id").Find(&items).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority.Rank() < items[j].Priority.Rank()
	})
	return items, nil
}
