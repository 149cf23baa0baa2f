package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-inventory/internal/apperror"
	"github.com/codyseavey/tcg-inventory/internal/database"
	"github.com/codyseavey/tcg-inventory/internal/models"
)

var borrowerScope = []database.Collection{database.Borrowers}

// BorrowerRepository treats the name as a natural key: lookups are exact
// matches and creation is lookup-first, insert-if-absent.
type BorrowerRepository struct {
	base
}

func NewBorrowerRepository(store *database.Store) *BorrowerRepository {
	return &BorrowerRepository{base: base{store: store}}
}

func (r *BorrowerRepository) With(tx *gorm.DB) *BorrowerRepository {
	return &BorrowerRepository{base: r.bind(tx)}
}

func (r *BorrowerRepository) Add(ctx context.Context, info models.BorrowerInfo) (*models.Borrower, error) {
	if err := models.Validate(info); err != nil {
		return nil, err
	}
	borrower := &models.Borrower{
		Name:  strings.TrimSpace(info.Name),
		Email: info.Email,
		Phone: info.Phone,
	}
	err := r.write(ctx, borrowerScope, func(tx *gorm.DB) error {
		if err := tx.Create(borrower).Error; err != nil {
			return fmt.Errorf("failed to add borrower: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return borrower, nil
}

// FindOrCreate returns the borrower with info.Name, creating it from info
// when absent. An existing borrower's contact details are left unchanged.
func (r *BorrowerRepository) FindOrCreate(ctx context.Context, info models.BorrowerInfo) (*models.Borrower, bool, error) {
	if err := models.Validate(info); err != nil {
		return nil, false, err
	}
	var (
		borrower *models.Borrower
		created  bool
	)
	err := r.write(ctx, borrowerScope, func(tx *gorm.DB) error {
		repo := r.With(tx)
		existing, err := repo.FindByName(ctx, strings.TrimSpace(info.Name))
		if err != nil {
			return err
		}
		if existing != nil {
			borrower = existing
			return nil
		}
		borrower, err = repo.Add(ctx, info)
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return borrower, created, nil
}

// Update changes contact details or the name. Existing lending records keep
// the name they were created with.
func (r *BorrowerRepository) Update(ctx context.Context, id uint, patch models.BorrowerPatch) (*models.Borrower, error) {
	if err := models.Validate(patch); err != nil {
		return nil, err
	}
	var borrower models.Borrower
	err := r.write(ctx, borrowerScope, func(tx *gorm.DB) error {
		if err := first(tx, &borrower, "Borrower", id); err != nil {
			return err
		}
		var columns []string
		if patch.Name != nil {
			borrower.Name = strings.TrimSpace(*patch.Name)
			columns = append(columns, "name")
		}
		if patch.Email != nil {
			borrower.Email = *patch.Email
			columns = append(columns, "email")
		}
		if patch.Phone != nil {
			borrower.Phone = *patch.Phone
			columns = append(columns, "phone")
		}
		if len(columns) == 0 {
			return nil
		}
		return tx.Model(&borrower).Select(columns).Updates(&borrower).Error
	})
	if err != nil {
		return nil, err
	}
	return &borrower, nil
}

func (r *BorrowerRepository) Get(ctx context.Context, id uint) (*models.Borrower, error) {
	var borrower models.Borrower
	if err := first(r.read(ctx), &borrower, "Borrower", id); err != nil {
		return nil, err
	}
	return &borrower, nil
}

// Delete removes a borrower that has no cards currently out
func (r *BorrowerRepository) Delete(ctx context.Context, id uint) error {
	return r.write(ctx, borrowerScope, func(tx *gorm.DB) error {
		var borrower models.Borrower
		if err := first(tx, &borrower, "Borrower", id); err != nil {
			return err
		}
		var active int64
		if err := tx.Model(&models.LendingRecord{}).
			Where("borrower_id = ? AND status = ?", id, models.LendingActive).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return apperror.Conflict("cannot delete borrower %q: %d card(s) currently lent out", borrower.Name, active)
		}
		return tx.Delete(&models.Borrower{}, id).Error
	})
}

// FindByName returns the first borrower with exactly this name, or nil
func (r *BorrowerRepository) FindByName(ctx context.Context, name string) (*models.Borrower, error) {
	var borrower models.Borrower
	found, err := findOne(r.read(ctx).Where("name = ?", name).Order("id"), &borrower)
	if err != nil || !found {
		return nil, err
	}
	return &borrower, nil
}

func (r *BorrowerRepository) List(ctx context.Context) ([]models.Borrower, error) {
	var borrowers []models.Borrower
	err := r.read(ctx).Order("name, id").Find(&borrowers).Error
	return borrowers, err
}

// GetMany loads borrowers keyed by id
func (r *BorrowerRepository) GetMany(ctx context.Context, ids []uint) (map[uint]*models.Borrower, error) {
	out := make(map[uint]*models.Borrower, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var borrowers []models.Borrower
	if err := r.read(ctx).Where("id IN ?", ids).Find(&borrowers).Error; err != nil {
		return nil, err
	}
	for i := range borrowers {
		out[borrowers[i].ID] = &borrowers[i]
	}
	return out, nil
}

func (r *BorrowerRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.read(ctx).Model(&models.Borrower{}).Count(&n).Error
	return n, err
}
