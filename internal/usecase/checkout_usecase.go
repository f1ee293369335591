package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	"app/internal/events"
	"app/internal/idempotency"
	"app/internal/jobqueue"
	"app/internal/metrics"
	repo "app/internal/repository"

	"github.com/sirupsen/logrus"
)

// 配送方法ごとの固定送料（最小通貨単位）
var shippingFees = map[model.ShippingMethod]int64{
	model.ShippingMethodRegular: 1500,
	model.ShippingMethodExpress: 3000,
	model.ShippingMethodPickup:  0,
}

// ロールバック時にバウチャーを戻す時間窓（注文作成時刻の前後）
const voucherRollbackWindow = 10 * time.Minute

type CheckoutUsecase struct {
	tx        repo.TransactionManager
	registry  *idempotency.Registry
	resolver  StoreResolver
	ledger    *StockLedger
	scheduler *jobqueue.Scheduler
	pub       events.Publisher
	log       *logrus.Logger

	// 未払い自動キャンセルまでの猶予（デフォルト60分）
	paymentDeadline time.Duration
}

func NewCheckoutUsecase(
	tx repo.TransactionManager,
	registry *idempotency.Registry,
	resolver StoreResolver,
	ledger *StockLedger,
	scheduler *jobqueue.Scheduler,
	pub events.Publisher,
	log *logrus.Logger,
	paymentDeadline time.Duration,
) *CheckoutUsecase {
	return &CheckoutUsecase{
		tx:              tx,
		registry:        registry,
		resolver:        resolver,
		ledger:          ledger,
		scheduler:       scheduler,
		pub:             pub,
		log:             log,
		paymentDeadline: paymentDeadline,
	}
}

type CheckoutItemInput struct {
	ProductID int64
	Qty       int64
}

type PlaceOrderInput struct {
	Items []CheckoutItemInput

	// 店舗の決め方: 明示指定 > 座標 > 住所 > デフォルト住所
	StoreID   *int64
	Latitude  *float64
	Longitude *float64
	AddressID *int64

	PaymentMethod  string
	ShippingMethod string
	VoucherCode    string
	IdempotencyKey string
}

type OrderItemOutput struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

type OrderOutput struct {
	ID                int64             `json:"id"`
	UserID            int64             `json:"user_id"`
	StoreID           int64             `json:"store_id"`
	Status            string            `json:"status"`
	Subtotal          int64             `json:"subtotal"`
	ShippingFee       int64             `json:"shipping_fee"`
	DiscountTotal     int64             `json:"discount_total"`
	GrandTotal        int64             `json:"grand_total"`
	TotalItems        int64             `json:"total_items"`
	PaymentMethod     string            `json:"payment_method"`
	ShippingMethod    string            `json:"shipping_method"`
	PaymentDeadlineAt time.Time         `json:"payment_deadline_at"`
	CreatedAt         time.Time         `json:"created_at"`
	Items             []OrderItemOutput `json:"items"`
}

func (u *CheckoutUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "items empty")
	}
	for _, it := range in.Items {
		if it.ProductID <= 0 || it.Qty <= 0 {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid item")
		}
	}

	payMethod := model.PaymentMethod(strings.TrimSpace(in.PaymentMethod))
	switch payMethod {
	case model.PaymentMethodBankTransfer, model.PaymentMethodGateway, model.PaymentMethodCOD:
	default:
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_method")
	}

	shipMethod := model.ShippingMethod(strings.TrimSpace(in.ShippingMethod))
	shippingFee, ok := shippingFees[shipMethod]
	if !ok {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid shipping_method")
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > 255 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency_key")
	}

	// 同じキーの同時・再送リクエストは1回の実行に束ねる。
	// キーなしは素通し（レジストリはキー空文字で即fn実行）。
	regKey := ""
	if key != "" {
		regKey = fmt.Sprintf("%d:%s", userID, key)
	}

	v, replayed, err := u.registry.Do(regKey, func() (any, error) {
		out, err := u.placeOrderOnce(ctx, userID, in, payMethod, shipMethod, shippingFee, key)
		if err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	out, ok := v.(OrderOutput)
	if !ok {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if replayed {
		u.log.WithFields(logrus.Fields{
			"user_id":  userID,
			"order_id": out.ID,
		}).Info("checkout replayed from idempotency cache")
	}
	return out, nil
}

// 実際に1回だけ走る注文作成本体。
func (u *CheckoutUsecase) placeOrderOnce(ctx context.Context, userID int64, in PlaceOrderInput, payMethod model.PaymentMethod, shipMethod model.ShippingMethod, shippingFee int64, key string) (OrderOutput, error) {
	// 店舗解決（トランザクションの外。純粋な読み取り）
	storeID, err := u.resolveStore(ctx, userID, in)
	if err != nil {
		return OrderOutput{}, err
	}

	var out OrderOutput

	// 既存注文の再生かどうか。再生ならコミット後の副作用
	// （ジョブ予約・イベント・カウンタ）は二重に起こさない
	replayedFromDB := false

	//注文処理はトランザクション
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果（レジストリが再起動で飛んだときのDB側の防波堤）
		if key != "" {
			existing, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if found {
				items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
				if err != nil {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
				out = toOrderOutput(existing, items)
				replayedFromDB = true
				return nil
			}
		}

		now := time.Now()

		// 価格スナップショットと小計。価格は必ず今の商品価格から取る
		orderItems := make([]model.OrderItem, 0, len(in.Items))
		reserveItems := make([]ReserveItem, 0, len(in.Items))
		var subtotal int64 = 0
		var totalItems int64 = 0

		for _, it := range in.Items {
			p, err := r.Products().FindByID(ctx, it.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				metrics.CheckoutFailures.WithLabelValues("invalid_product").Inc()
				return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("product %d is not available", it.ProductID))
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !p.IsActive {
				metrics.CheckoutFailures.WithLabelValues("invalid_product").Inc()
				return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("product %d is not available", it.ProductID))
			}

			lineTotal := p.Price * it.Qty
			orderItems = append(orderItems, model.OrderItem{
				ProductID:           it.ProductID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   p.Price,
				Quantity:            it.Qty,
				LineTotal:           lineTotal,
				CreatedAt:           now,
			})
			reserveItems = append(reserveItems, ReserveItem{ProductID: it.ProductID, Qty: it.Qty})
			subtotal += lineTotal
			totalItems += it.Qty
		}

		// バウチャー（任意）
		var discount int64 = 0
		if code := strings.TrimSpace(in.VoucherCode); code != "" {
			d, err := u.consumeVoucher(ctx, r, userID, code, subtotal)
			if err != nil {
				return err
			}
			discount = d
		}

		grandTotal := subtotal - discount + shippingFee

		// 注文作成
		order := model.Order{
			UserID:            userID,
			StoreID:           storeID,
			Status:            model.OrderStatusPendingPayment,
			Subtotal:          subtotal,
			ShippingFee:       shippingFee,
			DiscountTotal:     discount,
			GrandTotal:        grandTotal,
			TotalItems:        totalItems,
			PaymentMethod:     payMethod,
			ShippingMethod:    shipMethod,
			PaymentDeadlineAt: now.Add(u.paymentDeadline),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if key != "" {
			order.IdempotencyKey = &key
		}

		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			// 競合扱いは一意制約違反だけ。それ以外は一時障害として500
			if !errors.Is(err, repo.ErrDuplicateKey) {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			//同時で同じキーが入った。もう一回検索して同じ結果を返す
			if key != "" {
				ex2, found2, err2 := r.Orders().FindByIdempotencyKey(ctx, userID, key)
				if err2 == nil && found2 {
					items2, err3 := r.OrderItems().ListByOrderID(ctx, ex2.ID)
					if err3 != nil {
						return NewHTTPError(http.StatusInternalServerError, "db error")
					}
					out = toOrderOutput(ex2, items2)
					replayedFromDB = true
					return nil
				}
			}
			return NewHTTPError(http.StatusConflict, "idempotency conflict")
		}

		// 在庫確保＋台帳。1品でも足りなければ全体をロールバック
		if err := u.ledger.Reserve(ctx, r, storeID, reserveItems, userID, &orderID); err != nil {
			var insufficient *InsufficientStockError
			if errors.As(err, &insufficient) {
				metrics.CheckoutFailures.WithLabelValues("insufficient_stock").Inc()
				return NewHTTPError(http.StatusBadRequest, insufficient.Error())
			}
			var noInv *NoInventoryError
			if errors.As(err, &noInv) {
				metrics.CheckoutFailures.WithLabelValues("no_inventory").Inc()
				return NewHTTPError(http.StatusBadRequest, noInv.Error())
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//注文明細一括作成
		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		order.ID = orderID
		out = toOrderOutput(order, orderItems)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}

	// 既存注文の再生。ジョブもイベントも初回作成時に済んでいる
	if replayedFromDB {
		u.log.WithFields(logrus.Fields{
			"user_id":  userID,
			"order_id": out.ID,
		}).Info("checkout replayed from existing order")
		return out, nil
	}

	// 自動キャンセルの予約はコミットの後。キューはDBとトランザクションを
	// 共有しないので、中で積むと失敗時にゴーストジョブが残る
	if err := u.scheduler.ScheduleAutoCancel(ctx, out.ID, u.paymentDeadline); err != nil {
		// 予約失敗でも注文は成立している。ログに残して運用で拾う
		u.log.WithError(err).WithField("order_id", out.ID).
			Error("failed to schedule auto-cancel job")
	}

	metrics.OrdersCreated.Inc()

	eventItems := make([]events.ItemQty, 0, len(out.Items))
	for _, it := range out.Items {
		eventItems = append(eventItems, events.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	u.pub.OrderCreated(events.OrderCreatedPayload{
		OrderID:    out.ID,
		UserID:     out.UserID,
		StoreID:    out.StoreID,
		Items:      eventItems,
		GrandTotal: out.GrandTotal,
	})

	return out, nil
}

func (u *CheckoutUsecase) resolveStore(ctx context.Context, userID int64, in PlaceOrderInput) (int64, error) {
	storeID, err := u.resolver.Resolve(ctx, userID, ResolveStoreInput{
		StoreID:   in.StoreID,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		AddressID: in.AddressID,
	})
	if errors.Is(err, ErrStoreNotResolved) {
		metrics.CheckoutFailures.WithLabelValues("store_unresolved").Inc()
		return 0, NewHTTPError(http.StatusBadRequest, "no store serves this location")
	}
	if errors.Is(err, repo.ErrNotFound) {
		return 0, NewHTTPError(http.StatusNotFound, "address not found")
	}
	if err != nil {
		return 0, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return storeID, nil
}

// バウチャーを消費して割引額を返す。割引は小計を超えない
func (u *CheckoutUsecase) consumeVoucher(ctx context.Context, r repo.TxRepos, userID int64, code string, subtotal int64) (int64, error) {
	v, err := r.Vouchers().FindByCode(ctx, code)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, NewHTTPError(http.StatusBadRequest, "invalid voucher")
	}
	if err != nil {
		return 0, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if !v.IsActive {
		return 0, NewHTTPError(http.StatusBadRequest, "invalid voucher")
	}
	if v.UserID != nil && *v.UserID != userID {
		return 0, NewHTTPError(http.StatusBadRequest, "invalid voucher")
	}
	if v.ExpiresAt != nil && v.ExpiresAt.Before(time.Now()) {
		return 0, NewHTTPError(http.StatusBadRequest, "voucher expired")
	}

	ok, err := r.Vouchers().MarkUsedIfUnused(ctx, v.ID, time.Now())
	if err != nil {
		return 0, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !ok {
		return 0, NewHTTPError(http.StatusBadRequest, "voucher already used")
	}

	discount := v.Amount
	if discount > subtotal {
		discount = subtotal
	}
	return discount, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal,
		})
	}

	return OrderOutput{
		ID:                o.ID,
		UserID:            o.UserID,
		StoreID:           o.StoreID,
		Status:            string(o.Status),
		Subtotal:          o.Subtotal,
		ShippingFee:       o.ShippingFee,
		DiscountTotal:     o.DiscountTotal,
		GrandTotal:        o.GrandTotal,
		TotalItems:        o.TotalItems,
		PaymentMethod:     string(o.PaymentMethod),
		ShippingMethod:    string(o.ShippingMethod),
		PaymentDeadlineAt: o.PaymentDeadlineAt,
		CreatedAt:         o.CreatedAt,
		Items:             outItems,
	}
}
