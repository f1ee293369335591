package repository

import (
	"context"
	"errors"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"gorm.io/gorm"
)

type VoucherGormRepository struct {
	db *gorm.DB
}

func NewVoucherGormRepository(db *gorm.DB) *VoucherGormRepository {
	return &VoucherGormRepository{db: db}
}

func (r *VoucherGormRepository) FindByCode(ctx context.Context, code string) (model.Voucher, error) {
	var v model.Voucher
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Voucher{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Voucher{}, err
	}
	return v, nil
}

// 未使用のときだけ使用済みへ（CAS）。falseなら同時に他で使われた
func (r *VoucherGormRepository) MarkUsedIfUnused(ctx context.Context, voucherID int64, usedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Voucher{}).
		Where("id = ? AND is_used = ?", voucherID, false).
		Updates(map[string]interface{}{
			"is_used": true,
			"used_at": usedAt,
		})

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// 注文作成時刻の前後windowの間に使われた本人のバウチャーを未使用へ戻す。
// user_id IS NULLの全員向けバウチャーも消費できるので、戻す側も拾う。
// FKではなく時間相関なので取り違えの可能性は残るが、許容している。
func (r *VoucherGormRepository) ReactivateUsedWithin(ctx context.Context, userID int64, center time.Time, window time.Duration) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Voucher{}).
		Where("(user_id = ? OR user_id IS NULL) AND is_used = ? AND used_at BETWEEN ? AND ?",
			userID, true, center.Add(-window), center.Add(window)).
		Updates(map[string]interface{}{
			"is_used": false,
			"used_at": nil,
		})

	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
