// Package authority contém os clientes do web service da SEFAZ.
package authority

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/hugohenrick/erp-veterinaria/pkg/clock"
	"github.com/hugohenrick/erp-veterinaria/pkg/nfe"
)

// Códigos de retorno da SEFAZ usados pelo simulador
const (
	CodeAuthorized      = "100"
	CodeEventRegistered = "135"
	CodeSchemaFailure   = "225"
	CodeInvalidKey      = "236"
	CodeUnknownProtocol = "217"
	CodeReasonTooShort  = "491"

	MessageAuthorized      = "Autorizado o uso da NF-e"
	MessageEventRegistered = "Evento registrado e vinculado a NF-e"
)

// SubmitRule decide se uma submissão deve ser rejeitada
type SubmitRule func(req fiscal.SubmitRequest) (fiscal.Rejected, bool)

// CancelRule decide se um cancelamento deve ser rejeitado
type CancelRule func(req fiscal.CancelRequest) (fiscal.Rejected, bool)

// Simulator imita a SEFAZ de homologação sem acesso à rede.
// Aceita por padrão; rejeições, indisponibilidade e latência são configuráveis.
type Simulator struct {
	mu         sync.Mutex
	clock      clock.Clock
	random     io.Reader
	latency    time.Duration
	submitRule SubmitRule
	cancelRule CancelRule
	failNext   int
	submits    int
	cancels    int
}

// Option configura o simulador
type Option func(*Simulator)

// WithLatency adiciona um atraso a cada chamada, respeitando o cancelamento do contexto
func WithLatency(d time.Duration) Option {
	return func(s *Simulator) { s.latency = d }
}

// WithClock define o relógio usado nos carimbos de tempo
func WithClock(c clock.Clock) Option {
	return func(s *Simulator) { s.clock = c }
}

// WithRandom define a fonte de aleatoriedade dos protocolos
func WithRandom(r io.Reader) Option {
	return func(s *Simulator) { s.random = r }
}

// WithRejectRule define uma regra de rejeição de submissões
func WithRejectRule(rule SubmitRule) Option {
	return func(s *Simulator) { s.submitRule = rule }
}

// WithRejection rejeita todas as submissões com o código e motivo informados
func WithRejection(code, message string) Option {
	return WithRejectRule(func(fiscal.SubmitRequest) (fiscal.Rejected, bool) {
		return fiscal.Rejected{Code: code, Message: message}, true
	})
}

// WithCancelRejectRule define uma regra de rejeição de cancelamentos
func WithCancelRejectRule(rule CancelRule) Option {
	return func(s *Simulator) { s.cancelRule = rule }
}

// NewSimulator cria um simulador da SEFAZ
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{clock: clock.Real{}, random: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailNext faz as próximas n chamadas retornarem Unavailable
func (s *Simulator) FailNext(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// SetRejectRule troca a regra de rejeição em tempo de execução
func (s *Simulator) SetRejectRule(rule SubmitRule) {
	s.mu.Lock()
	s.submitRule = rule
	s.mu.Unlock()
}

// Submissions retorna quantas submissões chegaram ao simulador
func (s *Simulator) Submissions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits
}

// Cancellations retorna quantos cancelamentos chegaram ao simulador
func (s *Simulator) Cancellations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

// Submit simula o serviço NFeAutorizacao
func (s *Simulator) Submit(ctx context.Context, req fiscal.SubmitRequest) (fiscal.Outcome, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.submits++
	unavailable := s.consumeFailure()
	rule := s.submitRule
	s.mu.Unlock()

	if unavailable {
		return fiscal.Unavailable{Cause: fmt.Errorf("%w: falha simulada", fiscal.ErrAuthorityUnavailable)}, nil
	}

	if req.XML == "" {
		return fiscal.Rejected{Code: CodeSchemaFailure, Message: "Rejeição: Falha no Schema XML da NFe"}, nil
	}
	key, err := nfe.ParseAccessKey(req.AccessKey)
	if err != nil {
		return fiscal.Rejected{Code: CodeInvalidKey, Message: "Rejeição: Chave de Acesso com dígito verificador inválido"}, nil
	}
	if rule != nil {
		if rejected, ok := rule(req); ok {
			return rejected, nil
		}
	}

	now := s.clock.Now()
	protocol, err := s.protocol(key.StateCode, now)
	if err != nil {
		return nil, err
	}

	return fiscal.Accepted{
		Protocol:  protocol,
		Code:      CodeAuthorized,
		Message:   MessageAuthorized,
		Timestamp: now,
	}, nil
}

// Cancel simula o evento de cancelamento (tpEvento 110111)
func (s *Simulator) Cancel(ctx context.Context, req fiscal.CancelRequest) (fiscal.Outcome, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cancels++
	unavailable := s.consumeFailure()
	rule := s.cancelRule
	s.mu.Unlock()

	if unavailable {
		return fiscal.Unavailable{Cause: fmt.Errorf("%w: falha simulada", fiscal.ErrAuthorityUnavailable)}, nil
	}

	key, err := nfe.ParseAccessKey(req.AccessKey)
	if err != nil {
		return fiscal.Rejected{Code: CodeInvalidKey, Message: "Rejeição: Chave de Acesso com dígito verificador inválido"}, nil
	}
	if req.Protocol == "" {
		return fiscal.Rejected{Code: CodeUnknownProtocol, Message: "Rejeição: NF-e não consta na base de dados da SEFAZ"}, nil
	}
	if utf8.RuneCountInString(req.Reason) < 15 {
		return fiscal.Rejected{Code: CodeReasonTooShort, Message: "Rejeição: Justificativa do evento com tamanho inválido"}, nil
	}
	if rule != nil {
		if rejected, ok := rule(req); ok {
			return rejected, nil
		}
	}

	now := s.clock.Now()
	protocol, err := s.protocol(key.StateCode, now)
	if err != nil {
		return nil, err
	}

	return fiscal.Accepted{
		Protocol:  protocol,
		Code:      CodeEventRegistered,
		Message:   MessageEventRegistered,
		Timestamp: now,
	}, nil
}

func (s *Simulator) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.latency)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// consumeFailure deve ser chamado com s.mu travado
func (s *Simulator) consumeFailure() bool {
	if s.failNext > 0 {
		s.failNext--
		return true
	}
	return false
}

// protocol gera o número de protocolo de 15 dígitos: cUF + AA + 11 dígitos
func (s *Simulator) protocol(stateCode string, now time.Time) (string, error) {
	n, err := rand.Int(s.random, big.NewInt(100000000000))
	if err != nil {
		return "", fmt.Errorf("falha ao gerar protocolo: %w", err)
	}
	return fmt.Sprintf("%s%s%011d", stateCode, now.Format("06"), n.Int64()), nil
}
