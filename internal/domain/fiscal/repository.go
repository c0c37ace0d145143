package fiscal

import (
	"context"
	"time"
)

// ConfigRepository define as operações de persistência da configuração fiscal
type ConfigRepository interface {
	// FindByTenant busca a configuração do tenant; ErrConfigNotFound se não existir
	FindByTenant(ctx context.Context, tenantID string) (*Config, error)

	// GetOrCreate retorna a configuração existente ou persiste a padrão
	GetOrCreate(ctx context.Context, tenantID string) (*Config, error)

	// Save grava a configuração, preservando a última sequência emitida
	Save(ctx context.Context, config *Config) error

	// NextSequence incrementa atomicamente e retorna o próximo número de NFe
	NextSequence(ctx context.Context, tenantID string) (int64, error)
}

// DocumentRepository define as operações de persistência dos documentos fiscais
type DocumentRepository interface {
	// Create grava um novo documento
	Create(ctx context.Context, doc *Document) error

	// FindByID busca o documento dentro do tenant
	FindByID(ctx context.Context, tenantID, id string) (*Document, error)

	// FindByInvoice lista os documentos de uma fatura, do mais recente ao mais antigo
	FindByInvoice(ctx context.Context, tenantID, invoiceID string) ([]*Document, error)

	// FindAuthorizedByInvoice retorna o documento autorizado da fatura ou ErrDocumentNotFound
	FindAuthorizedByInvoice(ctx context.Context, tenantID, invoiceID string) (*Document, error)

	// Update grava o documento somente se o estado e a versão persistidos forem os esperados.
	// Retorna ErrInvalidState quando outro processo alterou o documento antes.
	Update(ctx context.Context, doc *Document, expected DocumentStatus) error

	// ListStaleProcessing lista documentos em processing com última tentativa anterior a before
	ListStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*Document, error)

	// AppendEvent registra um evento de auditoria
	AppendEvent(ctx context.Context, event *DocumentEvent) error

	// ListEvents lista os eventos do documento em ordem cronológica
	ListEvents(ctx context.Context, tenantID, documentID string) ([]*DocumentEvent, error)
}

// InvoiceStore dá acesso às faturas do sistema de gestão
type InvoiceStore interface {
	// GetInvoiceWithItems busca a fatura com cliente e itens; ErrInvoiceNotFound se não existir
	GetInvoiceWithItems(ctx context.Context, tenantID, invoiceID string) (*Invoice, error)

	// SetFiscalStatus atualiza a situação fiscal e o número fiscal da fatura
	SetFiscalStatus(ctx context.Context, tenantID, invoiceID string, status InvoiceFiscalStatus, fiscalNumber int64) error
}

// CertificateInfo contém os dados extraídos de um arquivo PKCS#12
type CertificateInfo struct {
	Subject   string
	Issuer    string
	NotBefore time.Time
	NotAfter  time.Time
}

// CertificateInspector abre e valida arquivos de certificado digital
type CertificateInspector interface {
	Inspect(data []byte, password string) (*CertificateInfo, error)
}

// SecretSealer cifra e decifra segredos armazenados (senha do certificado)
type SecretSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// Archive guarda o XML autorizado fora do banco
type Archive interface {
	Put(ctx context.Context, doc *Document) (string, error)
}

// SchemaValidator valida o XML gerado contra o esquema da NFe
type SchemaValidator interface {
	Validate(xml []byte) error
}
