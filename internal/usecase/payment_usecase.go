package usecase

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
)

// ゲートウェイからの通知。署名は
// sha512(order_id + status_code + gross_amount + serverKey) のhex
type PaymentNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	TransactionStatus string `json:"transaction_status"`
	SignatureKey      string `json:"signature_key"`
}

type PaymentUsecase struct {
	fulfill   *FulfillmentUsecase
	serverKey string
	log       *logrus.Logger
}

func NewPaymentUsecase(fulfill *FulfillmentUsecase, serverKey string, log *logrus.Logger) *PaymentUsecase {
	return &PaymentUsecase{fulfill: fulfill, serverKey: serverKey, log: log}
}

// 検証済みの成功だけが状態を動かす。失敗系は何もしない
// （自動キャンセルのジョブがそのまま生きていて期限に発火する）
func (u *PaymentUsecase) HandleNotification(ctx context.Context, in PaymentNotification) error {
	if !u.verifySignature(in) {
		return NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	orderID, err := strconv.ParseInt(in.OrderID, 10, 64)
	if err != nil || orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid order reference")
	}

	switch in.TransactionStatus {
	case "settlement", "capture":
		u.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"status":   in.TransactionStatus,
		}).Info("payment settled")
		return u.fulfill.MarkPaid(ctx, orderID)

	case "deny", "cancel", "expire", "failure":
		// 状態は変えない。期限が来れば自動キャンセルが拾う
		u.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"status":   in.TransactionStatus,
		}).Info("payment failed, order left untouched")
		return nil

	default:
		// pendingなど。何もしない
		return nil
	}
}

func (u *PaymentUsecase) verifySignature(in PaymentNotification) bool {
	h := sha512.Sum512([]byte(in.OrderID + in.StatusCode + in.GrossAmount + u.serverKey))
	expected := hex.EncodeToString(h[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(in.SignatureKey)) == 1
}
