package authority

import (
	"context"

	"github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
)

// ProductionClient representa a integração real com a SEFAZ (SOAP + assinatura XML).
// Ainda não implementada: toda chamada retorna fiscal.ErrNotImplemented.
type ProductionClient struct{}

// NewProductionClient cria o cliente de produção
func NewProductionClient() *ProductionClient {
	return &ProductionClient{}
}

// Submit retorna fiscal.ErrNotImplemented
func (c *ProductionClient) Submit(ctx context.Context, req fiscal.SubmitRequest) (fiscal.Outcome, error) {
	return nil, fiscal.ErrNotImplemented
}

// Cancel retorna fiscal.ErrNotImplemented
func (c *ProductionClient) Cancel(ctx context.Context, req fiscal.CancelRequest) (fiscal.Outcome, error) {
	return nil, fiscal.ErrNotImplemented
}

// Resolver seleciona o cliente pelo ambiente do documento
type Resolver struct {
	staging    fiscal.AuthorityClient
	production fiscal.AuthorityClient
}

// NewResolver cria o seletor de clientes
func NewResolver(staging, production fiscal.AuthorityClient) *Resolver {
	return &Resolver{staging: staging, production: production}
}

// For retorna o cliente do ambiente informado
func (r *Resolver) For(env fiscal.Environment) fiscal.AuthorityClient {
	if env == fiscal.Production {
		return r.production
	}
	return r.staging
}
