package repository

import (
	"context"
	"errors"
	"time"

	"app/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 一意制約違反（冪等キーの二重作成など）。一時的なDB障害とは区別する
var ErrDuplicateKey = errors.New("duplicate key")

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	// 期待する現在ステータスと一致するときだけ更新する（CAS）。
	// 一致しなければ false（エラーではなくスキップ扱いにするのは呼び出し側の責務）。
	UpdateStatusFrom(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) (bool, error)

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error)

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
