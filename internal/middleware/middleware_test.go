package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/service"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

type verifierStub map[string]models.Identity

func (v verifierStub) VerifyCredential(_ context.Context, token string) (*models.Identity, error) {
	if token == "suspended" {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is suspended")
	}
	identity, ok := v[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return &identity, nil
}

func newProtectedRouter(roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	verifier := verifierStub{
		"learner":    {UserID: "user-l1", Role: models.RoleLearner},
		"admin":      {UserID: "user-a1", Role: models.RoleAdmin},
		"superadmin": {UserID: "user-s1", Role: models.RoleSuperAdmin},
	}
	r := gin.New()
	r.GET("/protected", JWT(verifier), RequireRoles(roles...), func(c *gin.Context) {
		c.String(http.StatusOK, IdentityFromContext(c).UserID)
	})
	return r
}

func call(r *gin.Engine, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresBearerToken(t *testing.T) {
	r := newProtectedRouter(models.RoleLearner)

	assert.Equal(t, http.StatusUnauthorized, call(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Bearer forged").Code)
}

func TestJWTRejectsInactiveAccount(t *testing.T) {
	r := newProtectedRouter(models.RoleLearner)

	w := call(r, "Bearer suspended")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "ACCOUNT_INACTIVE")
}

func TestRBACAllowsListedRoles(t *testing.T) {
	r := newProtectedRouter(models.RoleAdmin)

	w := call(r, "Bearer admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-a1", w.Body.String())

	assert.Equal(t, http.StatusForbidden, call(r, "Bearer learner").Code)
}

func TestRBACSuperAdminPassesEveryCheck(t *testing.T) {
	r := newProtectedRouter(models.RoleInstructor)

	assert.Equal(t, http.StatusOK, call(r, "bearer superadmin").Code)
}

func TestRBACWithoutIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, call(r, "").Code)
}

func TestRBACRefusesDeactivatedIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", func(c *gin.Context) {
		c.Set(ContextUserKey, &models.Identity{UserID: "user-a2", Role: models.RoleAdmin, Status: models.UserStatusSuspended})
	}, RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := call(r, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "ACCOUNT_INACTIVE")
}

func TestMetricsObservesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/instructors/:id/available-slots", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/instructors/i-1/available-slots", nil))
	require.Equal(t, http.StatusOK, w.Code)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	found := false
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" && label.GetValue() == "/instructors/:id/available-slots" {
					found = true
				}
			}
		}
	}
	assert.True(t, found)
}

func TestResponseMetaCollectsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/slots", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slots", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestMetricsCollapsesUnmatchedPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))

	for _, p := range []string{"/wp-admin", "/.env"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	paths := map[string]bool{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" {
					paths[label.GetValue()] = true
				}
			}
		}
	}
	assert.Equal(t, map[string]bool{unmatchedRoute: true}, paths)
}
