package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"gorm.io/gorm"
)

type StoreGormRepository struct {
	db *gorm.DB
}

func NewStoreGormRepository(db *gorm.DB) *StoreGormRepository {
	return &StoreGormRepository{db: db}
}

func (r *StoreGormRepository) FindByID(ctx context.Context, storeID int64) (model.Store, error) {
	var s model.Store
	err := r.db.WithContext(ctx).Where("id = ?", storeID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Store{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Store{}, err
	}
	return s, nil
}

func (r *StoreGormRepository) ListActive(ctx context.Context) ([]model.Store, error) {
	var stores []model.Store
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id asc").Find(&stores).Error
	if err != nil {
		return []model.Store{}, err
	}
	return stores, nil
}
