package memory

import (
	"context"
	"sync"

	"github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
)

// InvoiceStore implementa fiscal.InvoiceStore em memória
type InvoiceStore struct {
	mu       sync.Mutex
	invoices map[string]*fiscal.Invoice
}

// NewInvoiceStore cria um novo repositório de faturas em memória
func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{invoices: make(map[string]*fiscal.Invoice)}
}

// Put grava uma fatura (usado por seeds e testes)
func (s *InvoiceStore) Put(inv *fiscal.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[inv.ID] = cloneInvoice(inv)
}

// GetInvoiceWithItems busca a fatura com cliente e itens
func (s *InvoiceStore) GetInvoiceWithItems(ctx context.Context, tenantID, invoiceID string) (*fiscal.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID]
	if !ok || inv.TenantID != tenantID {
		return nil, fiscal.ErrInvoiceNotFound
	}
	return cloneInvoice(inv), nil
}

// SetFiscalStatus atualiza a situação fiscal da fatura
func (s *InvoiceStore) SetFiscalStatus(ctx context.Context, tenantID, invoiceID string, status fiscal.InvoiceFiscalStatus, fiscalNumber int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID]
	if !ok || inv.TenantID != tenantID {
		return fiscal.ErrInvoiceNotFound
	}
	inv.FiscalStatus = status
	inv.FiscalNumber = fiscalNumber
	return nil
}

func cloneInvoice(inv *fiscal.Invoice) *fiscal.Invoice {
	out := *inv
	out.Items = append([]fiscal.InvoiceItem(nil), inv.Items...)
	return &out
}
