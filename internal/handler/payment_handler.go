package handler

import (
	"net/http"

	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 決済ゲートウェイからの署名付きWebhook。認証ヘッダではなく署名で守る
type PaymentHandler struct {
	payments *usecase.PaymentUsecase
}

func NewPaymentHandler(payments *usecase.PaymentUsecase) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/payments/webhook", h.webhook)
}

func (h *PaymentHandler) webhook(c echo.Context) error {
	var in usecase.PaymentNotification
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	if err := h.payments.HandleNotification(c.Request().Context(), in); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
