package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"gorm.io/gorm"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

func (r *InventoryGormRepository) FindStock(ctx context.Context, storeID int64, productID int64) (int64, bool, error) {
	var inv model.StoreInventory
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND product_id = ?", storeID, productID).
		First(&inv).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return inv.Stock, true, nil
}

// 在庫が足りるときだけ減らす。条件付きUPDATEなので同時実行でも負にならない
func (r *InventoryGormRepository) DecreaseStockIfEnough(ctx context.Context, storeID int64, productID int64, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.StoreInventory{}).
		Where("store_id = ? AND product_id = ? AND stock >= ?", storeID, productID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// 在庫戻し（キャンセル）
func (r *InventoryGormRepository) IncreaseStock(ctx context.Context, storeID int64, productID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.StoreInventory{}).
		Where("store_id = ? AND product_id = ?", storeID, productID).
		Update("stock", gorm.Expr("stock + ?", qty))

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 台帳追記（追記のみ。更新・削除のメソッドは作らない）
func (r *InventoryGormRepository) AppendJournal(ctx context.Context, entry model.StockJournal) error {
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return err
	}
	return nil
}
