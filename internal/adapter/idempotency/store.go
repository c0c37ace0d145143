// Package idempotency guarda as respostas de requisições com Idempotency-Key.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indica que a chave não existe ou expirou
var ErrNotFound = errors.New("chave de idempotência não encontrada")

// Record é o estado associado a uma chave: em andamento ou resposta concluída
type Record struct {
	Pending     bool   `json:"pending"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Store reserva chaves e guarda a resposta final
type Store interface {
	// Reserve grava a chave como pendente; false se ela já existia
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Complete substitui a reserva pela resposta final
	Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error

	// Get devolve o registro ou ErrNotFound
	Get(ctx context.Context, key string) (*Record, error)

	// Release remove a chave para permitir nova tentativa
	Release(ctx context.Context, key string) error
}
