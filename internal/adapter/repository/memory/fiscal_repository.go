// Package memory contém repositórios em memória com a mesma semântica dos repositórios PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/hugohenrick/erp-veterinaria/pkg/clock"
)

// ConfigRepository implementa fiscal.ConfigRepository em memória
type ConfigRepository struct {
	mu      sync.Mutex
	clock   clock.Clock
	configs map[string]*fiscal.Config
}

// NewConfigRepository cria um novo repositório de configurações em memória
func NewConfigRepository(clk clock.Clock) *ConfigRepository {
	return &ConfigRepository{clock: clk, configs: make(map[string]*fiscal.Config)}
}

// FindByTenant busca a configuração do tenant
func (r *ConfigRepository) FindByTenant(ctx context.Context, tenantID string) (*fiscal.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[tenantID]
	if !ok {
		return nil, fiscal.ErrConfigNotFound
	}
	return cloneConfig(cfg), nil
}

// GetOrCreate retorna a configuração existente ou cria a padrão
func (r *ConfigRepository) GetOrCreate(ctx context.Context, tenantID string) (*fiscal.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg, ok := r.configs[tenantID]; ok {
		return cloneConfig(cfg), nil
	}

	cfg, err := fiscal.NewConfig(tenantID, r.clock.Now())
	if err != nil {
		return nil, err
	}
	r.configs[tenantID] = cloneConfig(cfg)
	return cfg, nil
}

// Save grava a configuração sem alterar a última sequência emitida
func (r *ConfigRepository) Save(ctx context.Context, config *fiscal.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := cloneConfig(config)
	if current, ok := r.configs[config.TenantID]; ok {
		stored.ID = current.ID
		stored.CreatedAt = current.CreatedAt
		stored.LastSequence = current.LastSequence
	}
	r.configs[config.TenantID] = stored
	return nil
}

// NextSequence incrementa e retorna a sequência do tenant
func (r *ConfigRepository) NextSequence(ctx context.Context, tenantID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[tenantID]
	if !ok {
		return 0, fiscal.ErrConfigNotFound
	}
	cfg.LastSequence++
	cfg.UpdatedAt = r.clock.Now()
	return cfg.LastSequence, nil
}

func cloneConfig(c *fiscal.Config) *fiscal.Config {
	out := *c
	if c.CertificateData != nil {
		out.CertificateData = append([]byte(nil), c.CertificateData...)
	}
	if c.CertificateExpiresAt != nil {
		t := *c.CertificateExpiresAt
		out.CertificateExpiresAt = &t
	}
	return &out
}

// DocumentRepository implementa fiscal.DocumentRepository em memória
type DocumentRepository struct {
	mu        sync.Mutex
	documents map[string]*fiscal.Document
	events    []*fiscal.DocumentEvent
}

// NewDocumentRepository cria um novo repositório de documentos em memória
func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{documents: make(map[string]*fiscal.Document)}
}

// Create grava um novo documento
func (r *DocumentRepository) Create(ctx context.Context, doc *fiscal.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.documents {
		if existing.AccessKey == doc.AccessKey {
			return fiscal.ErrInvalidState
		}
	}
	if doc.Status == fiscal.StatusAuthorized && r.hasAuthorized(doc.TenantID, doc.InvoiceID, doc.ID) {
		return fiscal.ErrDuplicateAuthorization
	}

	stored := doc.Clone()
	stored.Version = 1
	r.documents[doc.ID] = stored
	doc.Version = 1
	return nil
}

// FindByID busca o documento dentro do tenant
func (r *DocumentRepository) FindByID(ctx context.Context, tenantID, id string) (*fiscal.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[id]
	if !ok || doc.TenantID != tenantID {
		return nil, fiscal.ErrDocumentNotFound
	}
	return doc.Clone(), nil
}

// FindByInvoice lista os documentos da fatura, do mais recente ao mais antigo
func (r *DocumentRepository) FindByInvoice(ctx context.Context, tenantID, invoiceID string) ([]*fiscal.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var docs []*fiscal.Document
	for _, doc := range r.documents {
		if doc.TenantID == tenantID && doc.InvoiceID == invoiceID {
			docs = append(docs, doc.Clone())
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].Sequence > docs[j].Sequence
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// FindAuthorizedByInvoice retorna o documento autorizado da fatura
func (r *DocumentRepository) FindAuthorizedByInvoice(ctx context.Context, tenantID, invoiceID string) (*fiscal.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, doc := range r.documents {
		if doc.TenantID == tenantID && doc.InvoiceID == invoiceID && doc.Status == fiscal.StatusAuthorized {
			return doc.Clone(), nil
		}
	}
	return nil, fiscal.ErrDocumentNotFound
}

// Update aplica a transição se o estado e a versão persistidos forem os esperados
func (r *DocumentRepository) Update(ctx context.Context, doc *fiscal.Document, expected fiscal.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.documents[doc.ID]
	if !ok || current.TenantID != doc.TenantID {
		return fiscal.ErrDocumentNotFound
	}
	if current.Status != expected || current.Version != doc.Version {
		return fiscal.ErrInvalidState
	}
	if doc.Status == fiscal.StatusAuthorized && r.hasAuthorized(doc.TenantID, doc.InvoiceID, doc.ID) {
		return fiscal.ErrDuplicateAuthorization
	}

	doc.Version++
	r.documents[doc.ID] = doc.Clone()
	return nil
}

// ListStaleProcessing lista documentos presos em processing
func (r *DocumentRepository) ListStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*fiscal.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var docs []*fiscal.Document
	for _, doc := range r.documents {
		if doc.Status != fiscal.StatusProcessing {
			continue
		}
		if doc.LastAttemptAt == nil || doc.LastAttemptAt.Before(before) {
			docs = append(docs, doc.Clone())
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].UpdatedAt.Before(docs[j].UpdatedAt) })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// AppendEvent registra um evento de auditoria
func (r *DocumentRepository) AppendEvent(ctx context.Context, event *fiscal.DocumentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := *event
	r.events = append(r.events, &e)
	return nil
}

// ListEvents lista os eventos do documento em ordem cronológica
func (r *DocumentRepository) ListEvents(ctx context.Context, tenantID, documentID string) ([]*fiscal.DocumentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var events []*fiscal.DocumentEvent
	for _, e := range r.events {
		if e.TenantID == tenantID && e.DocumentID == documentID {
			c := *e
			events = append(events, &c)
		}
	}
	return events, nil
}

// hasAuthorized deve ser chamado com r.mu travado
func (r *DocumentRepository) hasAuthorized(tenantID, invoiceID, exceptID string) bool {
	for id, doc := range r.documents {
		if id != exceptID && doc.TenantID == tenantID && doc.InvoiceID == invoiceID && doc.Status == fiscal.StatusAuthorized {
			return true
		}
	}
	return false
}
