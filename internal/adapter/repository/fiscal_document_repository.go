package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const authorizedInvoiceIndex = "ux_fiscal_documents_authorized_invoice"

const documentColumns = `
	id, tenant_id, config_id, invoice_id, type, environment,
	sequence, series, access_key, control_code,
	status, xml, attempts, last_attempt_at,
	response_code, response_message, protocol, authorized_at,
	cancelled, cancel_reason, cancel_protocol, cancelled_at,
	version, issued_at, created_at, updated_at`

// FiscalDocumentRepository implementa a interface fiscal.DocumentRepository
type FiscalDocumentRepository struct {
	db *pgxpool.Pool
}

// NewFiscalDocumentRepository cria uma nova instância de FiscalDocumentRepository
func NewFiscalDocumentRepository(db *pgxpool.Pool) *FiscalDocumentRepository {
	return &FiscalDocumentRepository{
		db: db,
	}
}

// Create implementa o método Create da interface fiscal.DocumentRepository
func (r *FiscalDocumentRepository) Create(ctx context.Context, doc *fiscal.Document) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := `
		INSERT INTO fiscal_documents (` + documentColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, 1, $23, $24, $25
		)
	`

	_, err = conn.Exec(ctx, query,
		doc.ID, doc.TenantID, doc.ConfigID, doc.InvoiceID, doc.Type, doc.Environment,
		doc.Sequence, doc.Series, doc.AccessKey, doc.ControlCode,
		doc.Status, doc.XML, doc.Attempts, doc.LastAttemptAt,
		doc.ResponseCode, doc.ResponseMessage, doc.Protocol, doc.AuthorizedAt,
		doc.Cancelled, doc.CancelReason, doc.CancelProtocol, doc.CancelledAt,
		doc.IssuedAt, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == "23505" && pgErr.ConstraintName == authorizedInvoiceIndex:
				return fiscal.ErrDuplicateAuthorization
			case pgErr.Code == "23505": // Unique violation
				return fmt.Errorf("%w: chave de acesso ou número já utilizado", fiscal.ErrInvalidState)
			case pgErr.Code == "23503": // Foreign key violation
				return fiscal.ErrInvoiceNotFound
			}
		}
		return fmt.Errorf("falha ao inserir documento fiscal: %w", err)
	}

	doc.Version = 1
	return nil
}

// FindByID implementa o método FindByID da interface fiscal.DocumentRepository
func (r *FiscalDocumentRepository) FindByID(ctx context.Context, tenantID, id string) (*fiscal.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fiscal.ErrDocumentNotFound
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := "SELECT" + documentColumns + " FROM fiscal_documents WHERE id = $1 AND tenant_id = $2"
	doc, err := scanDocument(conn.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fiscal.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("falha ao buscar documento fiscal: %w", err)
	}
	return doc, nil
}

// FindByInvoice implementa o método FindByInvoice da interface fiscal.DocumentRepository
func (r *FiscalDocumentRepository) FindByInvoice(ctx context.Context, tenantID, invoiceID string) ([]*fiscal.Document, error) {
	if _, err := uuid.Parse(invoiceID); err != nil {
		return []*fiscal.Document{}, nil
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := "SELECT" + documentColumns + `
		FROM fiscal_documents
		WHERE tenant_id = $1 AND invoice_id = $2
		ORDER BY created_at DESC, sequence DESC`

	rows, err := conn.Query(ctx, query, tenantID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("falha ao listar documentos fiscais: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// FindAuthorizedByInvoice implementa o método FindAuthorizedByInvoice da interface fiscal.DocumentRepository
func (r *FiscalDocumentRepository) FindAuthorizedByInvoice(ctx context.Context, tenantID, invoiceID string) (*fiscal.Document, error) {
	if _, err := uuid.Parse(invoiceID); err != nil {
		return nil, fiscal.ErrDocumentNotFound
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := "SELECT" + documentColumns + `
		FROM fiscal_documents
		WHERE tenant_id = $1 AND invoice_id = $2 AND status = $3`

	doc, err := scanDocument(conn.QueryRow(ctx, query, tenantID, invoiceID, fiscal.StatusAuthorized))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fiscal.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("falha ao buscar documento autorizado: %w", err)
	}
	return doc, nil
}

// Update implementa o método Update da interface fiscal.DocumentRepository.
// A linha só é alterada se status e versão persistidos coincidirem com os esperados.
func (r *FiscalDocumentRepository) Update(ctx context.Context, doc *fiscal.Document, expected fiscal.DocumentStatus) error {
	if _, err := uuid.Parse(doc.ID); err != nil {
		return fiscal.ErrDocumentNotFound
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := `
		UPDATE fiscal_documents SET
			status = $1, xml = $2, attempts = $3, last_attempt_at = $4,
			response_code = $5, response_message = $6, protocol = $7, authorized_at = $8,
			cancelled = $9, cancel_reason = $10, cancel_protocol = $11, cancelled_at = $12,
			updated_at = $13, version = version + 1
		WHERE id = $14 AND tenant_id = $15 AND status = $16 AND version = $17
	`

	tag, err := conn.Exec(ctx, query,
		doc.Status, doc.XML, doc.Attempts, doc.LastAttemptAt,
		doc.ResponseCode, doc.ResponseMessage, doc.Protocol, doc.AuthorizedAt,
		doc.Cancelled, doc.CancelReason, doc.CancelProtocol, doc.CancelledAt,
		doc.UpdatedAt, doc.ID, doc.TenantID, expected, doc.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == authorizedInvoiceIndex {
			return fiscal.ErrDuplicateAuthorization
		}
		return fmt.Errorf("falha ao atualizar documento fiscal: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		err = conn.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM fiscal_documents WHERE id = $1 AND tenant_id = $2)",
			doc.ID, doc.TenantID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("falha ao verificar documento fiscal: %w", err)
		}
		if !exists {
			return fiscal.ErrDocumentNotFound
		}
		return fiscal.ErrInvalidState
	}

	doc.Version++
	return nil
}

// ListStaleProcessing implementa o método ListStaleProcessing da interface fiscal.DocumentRepository
func (r *FiscalDocumentRepository) ListStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*fiscal.Document, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := "SELECT" + documentColumns + `
		FROM fiscal_documents
		WHERE status = $1 AND (last_attempt_at IS NULL OR last_attempt_at < $2)
		ORDER BY updated_at
		LIMIT $3`

	rows, err := conn.Query(ctx, query, fiscal.StatusProcessing, before, limit)
	if err != nil {
		return nil, fmt.Errorf("falha ao listar documentos em processamento: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// AppendEvent implementa o método AppendEvent da interface fiscal.DocumentRepository
func (r *FiscalDocumentRepository) AppendEvent(ctx context.Context, event *fiscal.DocumentEvent) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
		INSERT INTO fiscal_document_events (
			id, tenant_id, document_id, kind, from_status, to_status, code, message, protocol, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		event.ID, event.TenantID, event.DocumentID, event.Kind, event.FromStatus, event.ToStatus,
		event.Code, event.Message, event.Protocol, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("falha ao registrar evento fiscal: %w", err)
	}
	return nil
}

// ListEvents implementa o método ListEvents da interface fiscal.DocumentRepository
func (r *FiscalDocumentRepository) ListEvents(ctx context.Context, tenantID, documentID string) ([]*fiscal.DocumentEvent, error) {
	if _, err := uuid.Parse(documentID); err != nil {
		return []*fiscal.DocumentEvent{}, nil
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT id, tenant_id, document_id, kind, from_status, to_status, code, message, protocol, created_at
		FROM fiscal_document_events
		WHERE tenant_id = $1 AND document_id = $2
		ORDER BY seq
	`, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("falha ao listar eventos fiscais: %w", err)
	}
	defer rows.Close()

	events := []*fiscal.DocumentEvent{}
	for rows.Next() {
		var e fiscal.DocumentEvent
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.DocumentID, &e.Kind, &e.FromStatus, &e.ToStatus,
			&e.Code, &e.Message, &e.Protocol, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("falha ao ler evento fiscal: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("erro ao iterar eventos fiscais: %w", err)
	}

	return events, nil
}

func scanDocument(row pgx.Row) (*fiscal.Document, error) {
	var d fiscal.Document
	err := row.Scan(
		&d.ID, &d.TenantID, &d.ConfigID, &d.InvoiceID, &d.Type, &d.Environment,
		&d.Sequence, &d.Series, &d.AccessKey, &d.ControlCode,
		&d.Status, &d.XML, &d.Attempts, &d.LastAttemptAt,
		&d.ResponseCode, &d.ResponseMessage, &d.Protocol, &d.AuthorizedAt,
		&d.Cancelled, &d.CancelReason, &d.CancelProtocol, &d.CancelledAt,
		&d.Version, &d.IssuedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func collectDocuments(rows pgx.Rows) ([]*fiscal.Document, error) {
	docs := []*fiscal.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("falha ao ler documento fiscal: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("erro ao iterar documentos fiscais: %w", err)
	}
	return docs, nil
}
