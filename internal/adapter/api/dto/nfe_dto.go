package dto

import (
	"time"

	"github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
)

// CancelNFeRequest representa o pedido de cancelamento
type CancelNFeRequest struct {
	Reason string `json:"reason" binding:"required" example:"Cobrança emitida em duplicidade para o tutor"`
}

// NFeResponse representa o estado de um documento fiscal
type NFeResponse struct {
	ID              string     `json:"id"`
	InvoiceID       string     `json:"invoice_id"`
	Environment     string     `json:"environment"`
	Status          string     `json:"status"`
	Sequence        int64      `json:"sequence"`
	Series          int        `json:"series"`
	AccessKey       string     `json:"access_key"`
	Attempts        int        `json:"attempts"`
	LastAttemptAt   *time.Time `json:"last_attempt_at,omitempty"`
	ResponseCode    string     `json:"response_code,omitempty"`
	ResponseMessage string     `json:"response_message,omitempty"`
	Protocol        string     `json:"protocol,omitempty"`
	AuthorizedAt    *time.Time `json:"authorized_at,omitempty"`
	Cancelled       bool       `json:"cancelled"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CancelProtocol  string     `json:"cancel_protocol,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	IssuedAt        time.Time  `json:"issued_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewNFeResponse cria a resposta a partir do documento
func NewNFeResponse(doc *fiscal.Document) *NFeResponse {
	return &NFeResponse{
		ID:              doc.ID,
		InvoiceID:       doc.InvoiceID,
		Environment:     string(doc.Environment),
		Status:          string(doc.Status),
		Sequence:        doc.Sequence,
		Series:          doc.Series,
		AccessKey:       doc.AccessKey,
		Attempts:        doc.Attempts,
		LastAttemptAt:   doc.LastAttemptAt,
		ResponseCode:    doc.ResponseCode,
		ResponseMessage: doc.ResponseMessage,
		Protocol:        doc.Protocol,
		AuthorizedAt:    doc.AuthorizedAt,
		Cancelled:       doc.Cancelled,
		CancelReason:    doc.CancelReason,
		CancelProtocol:  doc.CancelProtocol,
		CancelledAt:     doc.CancelledAt,
		IssuedAt:        doc.IssuedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

// NewNFeListResponse converte a lista de documentos
func NewNFeListResponse(docs []*fiscal.Document) []*NFeResponse {
	out := make([]*NFeResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, NewNFeResponse(doc))
	}
	return out
}

// NFeEventResponse representa um item da trilha de auditoria
type NFeEventResponse struct {
	Kind       string    `json:"kind"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	Protocol   string    `json:"protocol,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewNFeEventListResponse converte a trilha de auditoria
func NewNFeEventListResponse(events []*fiscal.DocumentEvent) []*NFeEventResponse {
	out := make([]*NFeEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, &NFeEventResponse{
			Kind:       string(e.Kind),
			FromStatus: string(e.FromStatus),
			ToStatus:   string(e.ToStatus),
			Code:       e.Code,
			Message:    e.Message,
			Protocol:   e.Protocol,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}
