// Package middleware reúne middlewares HTTP específicos da API fiscal.
package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/api/dto"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/idempotency"
	"github.com/hugohenrick/erp-veterinaria/pkg/logger"
	"github.com/hugohenrick/erp-veterinaria/pkg/tenant"
)

const (
	// IdempotencyHeader é o cabeçalho com a chave escolhida pelo cliente
	IdempotencyHeader = "Idempotency-Key"

	// ReplayedHeader marca respostas devolvidas a partir do store
	ReplayedHeader = "Idempotent-Replayed"

	maxKeyLength = 255
)

// bodyWriter copia o corpo escrito para poder gravá-lo depois
type bodyWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency reaproveita a resposta de requisições repetidas com o mesmo Idempotency-Key.
// A chave é isolada por tenant e rota. Só respostas 2xx ficam gravadas; nas demais a
// chave é liberada para nova tentativa.
func Idempotency(store idempotency.Store, ttl time.Duration, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxKeyLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest,
				"Idempotency-Key inválido", "a chave deve ter no máximo 255 caracteres"))
			return
		}

		ctx := c.Request.Context()
		storeKey := tenant.GetTenantID(c) + ":" + c.Request.URL.Path + ":" + key

		rec, err := store.Get(ctx, storeKey)
		switch {
		case err == nil && rec.Pending:
			c.AbortWithStatusJSON(http.StatusConflict, dto.NewErrorResponse(http.StatusConflict,
				"requisição em andamento", "já existe uma requisição com esta Idempotency-Key sendo processada"))
			return
		case err == nil:
			c.Header(ReplayedHeader, "true")
			c.Data(rec.Status, rec.ContentType, rec.Body)
			c.Abort()
			return
		case !errors.Is(err, idempotency.ErrNotFound):
			log.Error("Falha ao consultar idempotência", "key", storeKey, "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.NewErrorResponse(http.StatusServiceUnavailable,
				"idempotência indisponível", "tente novamente"))
			return
		}

		reserved, err := store.Reserve(ctx, storeKey, ttl)
		if err != nil {
			log.Error("Falha ao reservar chave de idempotência", "key", storeKey, "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.NewErrorResponse(http.StatusServiceUnavailable,
				"idempotência indisponível", "tente novamente"))
			return
		}
		if !reserved {
			c.AbortWithStatusJSON(http.StatusConflict, dto.NewErrorResponse(http.StatusConflict,
				"requisição em andamento", "já existe uma requisição com esta Idempotency-Key sendo processada"))
			return
		}

		writer := &bodyWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		status := writer.Status()
		if status >= 200 && status < 300 {
			completed := idempotency.Record{
				Status:      status,
				ContentType: writer.Header().Get("Content-Type"),
				Body:        writer.body.Bytes(),
			}
			if err := store.Complete(ctx, storeKey, completed, ttl); err != nil {
				log.Error("Falha ao gravar resposta idempotente", "key", storeKey, "error", err)
			}
			return
		}

		if err := store.Release(ctx, storeKey); err != nil {
			log.Warn("Falha ao liberar chave de idempotência", "key", storeKey, "error", err)
		}
	}
}
