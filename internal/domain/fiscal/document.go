package fiscal

import (
	"time"

	"github.com/google/uuid"
)

// DocumentType define o tipo de documento fiscal
type DocumentType string

const DocumentTypeNFe DocumentType = "NFe"

// DocumentStatus define o estado do documento no ciclo de vida
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusAuthorized DocumentStatus = "authorized"
	StatusRejected   DocumentStatus = "rejected"
	StatusCancelled  DocumentStatus = "cancelled"
)

// Document representa uma tentativa de emissão de NFe para uma fatura
type Document struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenant_id"`
	ConfigID    string       `json:"config_id"`
	InvoiceID   string       `json:"invoice_id"`
	Type        DocumentType `json:"type"`
	Environment Environment  `json:"environment"`

	Sequence    int64  `json:"sequence"`
	Series      int    `json:"series"`
	AccessKey   string `json:"access_key"`
	ControlCode string `json:"control_code"`

	Status        DocumentStatus `json:"status"`
	XML           string         `json:"-"`
	Attempts      int            `json:"attempts"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`

	ResponseCode    string     `json:"response_code,omitempty"`
	ResponseMessage string     `json:"response_message,omitempty"`
	Protocol        string     `json:"protocol,omitempty"`
	AuthorizedAt    *time.Time `json:"authorized_at,omitempty"`

	Cancelled      bool       `json:"cancelled"`
	CancelReason   string     `json:"cancel_reason,omitempty"`
	CancelProtocol string     `json:"cancel_protocol,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`

	// Version é incrementada a cada transição persistida (controle otimista)
	Version int `json:"version"`

	IssuedAt  time.Time `json:"issued_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocument cria o documento no estado pending
func NewDocument(cfg *Config, invoiceID string, sequence int64, accessKey, controlCode string, issuedAt time.Time) *Document {
	return &Document{
		ID:          uuid.New().String(),
		TenantID:    cfg.TenantID,
		ConfigID:    cfg.ID,
		InvoiceID:   invoiceID,
		Type:        DocumentTypeNFe,
		Environment: cfg.Environment,
		Sequence:    sequence,
		Series:      cfg.Series,
		AccessKey:   accessKey,
		ControlCode: controlCode,
		Status:      StatusPending,
		IssuedAt:    issuedAt,
		CreatedAt:   issuedAt,
		UpdatedAt:   issuedAt,
	}
}

// StartAttempt move o documento para processing e contabiliza a tentativa
func (d *Document) StartAttempt(now time.Time) {
	d.Status = StatusProcessing
	d.Attempts++
	d.LastAttemptAt = &now
	d.UpdatedAt = now
}

// Authorize registra a autorização de uso devolvida pela SEFAZ
func (d *Document) Authorize(protocol, code, message string, at time.Time) {
	d.Status = StatusAuthorized
	d.Protocol = protocol
	d.ResponseCode = code
	d.ResponseMessage = message
	d.AuthorizedAt = &at
	d.UpdatedAt = at
}

// Reject registra a rejeição devolvida pela SEFAZ
func (d *Document) Reject(code, message string, now time.Time) {
	d.Status = StatusRejected
	d.ResponseCode = code
	d.ResponseMessage = message
	d.UpdatedAt = now
}

// Release devolve o documento para pending após falha de comunicação
func (d *Document) Release(message string, now time.Time) {
	d.Status = StatusPending
	d.ResponseMessage = message
	d.UpdatedAt = now
}

// Cancel registra o evento de cancelamento homologado
func (d *Document) Cancel(reason, protocol string, at time.Time) {
	d.Status = StatusCancelled
	d.Cancelled = true
	d.CancelReason = reason
	d.CancelProtocol = protocol
	d.CancelledAt = &at
	d.UpdatedAt = at
}

// IsStaleProcessing verifica se o documento ficou preso em processing além do limite
func (d *Document) IsStaleProcessing(now time.Time, after time.Duration) bool {
	if d.Status != StatusProcessing {
		return false
	}
	if d.LastAttemptAt == nil {
		return true
	}
	return now.Sub(*d.LastAttemptAt) >= after
}

// Clone retorna uma cópia independente do documento
func (d *Document) Clone() *Document {
	c := *d
	c.LastAttemptAt = cloneTime(d.LastAttemptAt)
	c.AuthorizedAt = cloneTime(d.AuthorizedAt)
	c.CancelledAt = cloneTime(d.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// EventKind identifica o tipo de registro de auditoria
type EventKind string

const (
	EventGenerated   EventKind = "generated"
	EventTransmit    EventKind = "transmit"
	EventAuthorized  EventKind = "authorized"
	EventRejected    EventKind = "rejected"
	EventUnavailable EventKind = "unavailable"
	EventCancel      EventKind = "cancel"
	EventCancelled   EventKind = "cancelled"
	EventReclaimed   EventKind = "reclaimed"
)

// DocumentEvent registra uma interação com a autoridade fiscal ou transição de estado
type DocumentEvent struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	DocumentID string         `json:"document_id"`
	Kind       EventKind      `json:"kind"`
	FromStatus DocumentStatus `json:"from_status,omitempty"`
	ToStatus   DocumentStatus `json:"to_status,omitempty"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Protocol   string         `json:"protocol,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewDocumentEvent cria um registro de auditoria para o documento
func NewDocumentEvent(doc *Document, kind EventKind, from DocumentStatus, now time.Time) *DocumentEvent {
	return &DocumentEvent{
		ID:         uuid.New().String(),
		TenantID:   doc.TenantID,
		DocumentID: doc.ID,
		Kind:       kind,
		FromStatus: from,
		ToStatus:   doc.Status,
		CreatedAt:  now,
	}
}
