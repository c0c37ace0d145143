package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/idempotency"
	"github.com/hugohenrick/erp-veterinaria/pkg/clock"
	"github.com/hugohenrick/erp-veterinaria/pkg/logger"
	"github.com/hugohenrick/erp-veterinaria/pkg/tenant"
	"github.com/stretchr/testify/assert"
)

func newIdempotentRouter(store idempotency.Store, status *int, calls *int32) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(tenant.TenantMiddleware())
	router.POST("/nfe", Idempotency(store, time.Hour, logger.NewNop()), func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(*status, gin.H{"call": n})
	})
	return router
}

func doPost(router *gin.Engine, tenantID, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/nfe", nil)
	req.Header.Set(tenant.HeaderName, tenantID)
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdempotency(t *testing.T) {
	t.Run("repete a resposta gravada", func(t *testing.T) {
		var calls int32
		status := http.StatusCreated
		router := newIdempotentRouter(idempotency.NewMemoryStore(clock.Real{}), &status, &calls)

		first := doPost(router, "clinic-a", "key-1")
		second := doPost(router, "clinic-a", "key-1")

		assert.Equal(t, http.StatusCreated, first.Code)
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.JSONEq(t, first.Body.String(), second.Body.String())
		assert.Equal(t, "true", second.Header().Get(ReplayedHeader))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("chave isolada por tenant", func(t *testing.T) {
		var calls int32
		status := http.StatusCreated
		router := newIdempotentRouter(idempotency.NewMemoryStore(clock.Real{}), &status, &calls)

		doPost(router, "clinic-a", "key-1")
		doPost(router, "clinic-b", "key-1")
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("erro libera a chave", func(t *testing.T) {
		var calls int32
		status := http.StatusUnprocessableEntity
		router := newIdempotentRouter(idempotency.NewMemoryStore(clock.Real{}), &status, &calls)

		assert.Equal(t, http.StatusUnprocessableEntity, doPost(router, "clinic-a", "key-1").Code)

		status = http.StatusCreated
		w := doPost(router, "clinic-a", "key-1")
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Empty(t, w.Header().Get(ReplayedHeader))
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("chave pendente devolve conflito", func(t *testing.T) {
		var calls int32
		status := http.StatusCreated
		store := idempotency.NewMemoryStore(clock.Real{})
		router := newIdempotentRouter(store, &status, &calls)

		_, err := store.Reserve(t.Context(), "clinic-a:/nfe:key-1", time.Hour)
		assert.NoError(t, err)

		assert.Equal(t, http.StatusConflict, doPost(router, "clinic-a", "key-1").Code)
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})

	t.Run("sem cabeçalho não usa o store", func(t *testing.T) {
		var calls int32
		status := http.StatusCreated
		router := newIdempotentRouter(idempotency.NewMemoryStore(clock.Real{}), &status, &calls)

		doPost(router, "clinic-a", "")
		doPost(router, "clinic-a", "")
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})
}
