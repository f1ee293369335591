package repository

import (
	"context"
	"time"

	"app/internal/domain/model"
)

type VoucherRepository interface {
	FindByCode(ctx context.Context, code string) (model.Voucher, error)

	// 未使用のときだけ使用済みにする（CAS）。falseなら他で使われた
	MarkUsedIfUnused(ctx context.Context, voucherID int64, usedAt time.Time) (bool, error)

	// 注文作成時刻の前後windowの間に使われた本人のバウチャーを未使用に戻す。
	// 外部キーではなく時間相関のヒューリスティック（既知の精度ギャップ）。
	ReactivateUsedWithin(ctx context.Context, userID int64, center time.Time, window time.Duration) (int64, error)
}
