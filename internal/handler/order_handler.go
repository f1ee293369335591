package handler

import (
	"net/http"
	"strconv"

	"app/internal/config"
	"app/internal/middleware"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	checkout *usecase.CheckoutUsecase
	queries  *usecase.OrderQueryUsecase
	fulfill  *usecase.FulfillmentUsecase
}

func NewOrderHandler(checkout *usecase.CheckoutUsecase, queries *usecase.OrderQueryUsecase, fulfill *usecase.FulfillmentUsecase) *OrderHandler {
	return &OrderHandler{checkout: checkout, queries: queries, fulfill: fulfill}
}

type OrderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Qty       int64 `json:"qty"`
}

type OrderCreateRequest struct {
	Items          []OrderItemRequest `json:"items"`
	StoreID        *int64             `json:"store_id"`
	AddressID      *int64             `json:"address_id"`
	Latitude       *float64           `json:"latitude"`
	Longitude      *float64           `json:"longitude"`
	PaymentMethod  string             `json:"payment_method"`
	ShippingMethod string             `json:"shipping_method"`
	VoucherCode    string             `json:"voucher_code"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/orders")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.POST("/:id/payment-proof", h.submitPaymentProof)
	g.POST("/:id/confirm-delivery", h.confirmDelivery)
	g.POST("/:id/cancel", h.cancel)
}

func (h *OrderHandler) create(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req OrderCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	//二重送信防止キーはヘッダーから受け取る（bodyには入れない）
	idemKey := c.Request().Header.Get("X-Idempotency-Key")

	items := make([]usecase.CheckoutItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, usecase.CheckoutItemInput{ProductID: it.ProductID, Qty: it.Qty})
	}

	out, err := h.checkout.PlaceOrder(c.Request().Context(), userID, usecase.PlaceOrderInput{
		Items:          items,
		StoreID:        req.StoreID,
		AddressID:      req.AddressID,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		PaymentMethod:  req.PaymentMethod,
		ShippingMethod: req.ShippingMethod,
		VoucherCode:    req.VoucherCode,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.queries.ListMyOrders(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.queries.GetMyOrderDetail(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) submitPaymentProof(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.fulfill.SubmitPaymentProof(c.Request().Context(), userID, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "PAYMENT_REVIEW"})
}

func (h *OrderHandler) confirmDelivery(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.fulfill.ConfirmDelivery(c.Request().Context(), userID, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "CONFIRMED"})
}

func (h *OrderHandler) cancel(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.fulfill.Cancel(c.Request().Context(), userID, id, false); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "CANCELLED"})
}
