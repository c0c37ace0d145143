package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "fiscal:idempotency:"

// RedisStore implementa Store no Redis; compartilhado entre instâncias da API
type RedisStore struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisStore cria o store a partir de um cliente existente
func NewRedisStore(client redis.Cmdable, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// Reserve usa SETNX com TTL numa única operação atômica
func (s *RedisStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(Record{Pending: true})
	if err != nil {
		return false, err
	}

	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("falha ao reservar chave de idempotência: %w", err)
	}
	return ok, nil
}

// Complete grava a resposta final
func (s *RedisStore) Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	rec.Pending = false
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.keyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("falha ao gravar resposta idempotente: %w", err)
	}
	return nil
}

// Get lê o registro da chave
func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	payload, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("falha ao ler chave de idempotência: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("registro de idempotência corrompido: %w", err)
	}
	return &rec, nil
}

// Release remove a chave
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("falha ao liberar chave de idempotência: %w", err)
	}
	return nil
}
