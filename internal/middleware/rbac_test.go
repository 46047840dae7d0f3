package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/center-ops-api/internal/models"
)

func rbacRouter(allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/:id", func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(ContextUserKey, &models.JWTClaims{
				UserID: c.GetHeader("X-Test-User"),
				Role:   models.UserRole(role),
			})
		}
	}, RBAC(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func rbacRequest(r *gin.Engine, role, userID string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/u1", nil)
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRBACAllowsListedRole(t *testing.T) {
	r := rbacRouter("ADMIN", "ACCOUNTANT")
	assert.Equal(t, http.StatusOK, rbacRequest(r, "ADMIN", "x").Code)
	assert.Equal(t, http.StatusOK, rbacRequest(r, "ACCOUNTANT", "x").Code)
}

func TestRBACForbidsOtherRoles(t *testing.T) {
	r := rbacRouter("ADMIN")
	assert.Equal(t, http.StatusForbidden, rbacRequest(r, "TEACHER", "x").Code)
}

func TestRBACRequiresClaims(t *testing.T) {
	r := rbacRouter("ADMIN")
	assert.Equal(t, http.StatusUnauthorized, rbacRequest(r, "", "").Code)
}

func TestRBACSelfAccess(t *testing.T) {
	r := rbacRouter("ADMIN", "SELF")
	// The route parameter id is "u1"; a matching user passes, others do not.
	assert.Equal(t, http.StatusOK, rbacRequest(r, "TEACHER", "u1").Code)
	assert.Equal(t, http.StatusForbidden, rbacRequest(r, "TEACHER", "u2").Code)
}

func TestRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{Role: models.RoleSuperAdmin})
	}, RequireRoles(models.RoleSuperAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
