package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"app/internal/domain/model"
	"app/internal/middleware"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func callGuard(t *testing.T, role interface{}) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if role != nil {
		c.Set(middleware.CtxUserRoleKey, role)
	}

	h := middleware.AdminRoleGuard()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	assert.NoError(t, h(c))
	return rec
}

func TestAdminRoleGuard_AdminPasses(t *testing.T) {
	rec := callGuard(t, string(model.RoleAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoleGuard_UserForbidden(t *testing.T) {
	rec := callGuard(t, string(model.RoleUser))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin only")
}

func TestAdminRoleGuard_MissingRoleUnauthorized(t *testing.T) {
	rec := callGuard(t, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
