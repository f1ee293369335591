package server

import (
	"context"

	"app/internal/config"
	"app/internal/handler"
	"app/internal/metrics"

	"github.com/labstack/echo/v4"
)

type Server struct {
	e *echo.Echo
}

func New(cfg config.Config, orderH *handler.OrderHandler, adminH *handler.AdminOrderHandler, paymentH *handler.PaymentHandler) *Server {
	e := echo.New()
	e.HideBanner = true

	orderH.RegisterRoutes(e, cfg)
	adminH.RegisterRoutes(e, cfg)
	paymentH.RegisterRoutes(e)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(200, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
