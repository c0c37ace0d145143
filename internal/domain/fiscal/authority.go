package fiscal

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"
)

// SubmitRequest é o lote enviado para autorização
type SubmitRequest struct {
	TenantID    string
	DocumentID  string
	AccessKey   string
	Environment Environment
	XML         string
}

// CancelRequest é o evento de cancelamento enviado à SEFAZ
type CancelRequest struct {
	TenantID    string
	DocumentID  string
	AccessKey   string
	Protocol    string
	Environment Environment
	Reason      string
	RequestedAt time.Time
}

// Outcome é o resultado de uma interação com a SEFAZ:
// Accepted, Rejected ou Unavailable.
type Outcome interface {
	outcome()
}

// Accepted indica autorização de uso ou evento homologado
type Accepted struct {
	Protocol  string
	Code      string
	Message   string
	Timestamp time.Time
}

// Rejected indica rejeição com código e motivo
type Rejected struct {
	Code    string
	Message string
}

// Unavailable indica falha transitória (rede, tempo esgotado)
type Unavailable struct {
	Cause error
}

func (Accepted) outcome()    {}
func (Rejected) outcome()    {}
func (Unavailable) outcome() {}

// AuthorityClient é o cliente do web service da SEFAZ
type AuthorityClient interface {
	// Submit envia a NFe para autorização
	Submit(ctx context.Context, req SubmitRequest) (Outcome, error)

	// Cancel envia o evento de cancelamento
	Cancel(ctx context.Context, req CancelRequest) (Outcome, error)
}

// AuthorityResolver escolhe o cliente conforme o ambiente configurado
type AuthorityResolver interface {
	For(env Environment) AuthorityClient
}

// ClassifyTransportError converte erros de transporte em Unavailable.
// Retorna false quando o erro não é transitório.
func ClassifyTransportError(err error) (Unavailable, bool) {
	if err == nil {
		return Unavailable{}, false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrAuthorityUnavailable) {
		return Unavailable{Cause: err}, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Unavailable{Cause: err}, true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return Unavailable{Cause: err}, true
	}

	return Unavailable{}, false
}
