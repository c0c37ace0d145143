package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// InvoiceRepository implementa a interface fiscal.InvoiceStore sobre as tabelas de faturamento
type InvoiceRepository struct {
	db *pgxpool.Pool
}

// NewInvoiceRepository cria uma nova instância de InvoiceRepository
func NewInvoiceRepository(db *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{
		db: db,
	}
}

// GetInvoiceWithItems busca a fatura com o cliente e os itens ordenados
func (r *InvoiceRepository) GetInvoiceWithItems(ctx context.Context, tenantID, invoiceID string) (*fiscal.Invoice, error) {
	if _, err := uuid.Parse(invoiceID); err != nil {
		return nil, fiscal.ErrInvoiceNotFound
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	var inv fiscal.Invoice
	var discount, total string
	var fiscalNumber *int64
	c := &inv.Client

	err = conn.QueryRow(ctx, `
		SELECT i.id, i.tenant_id, i.number, i.status, i.fiscal_status, i.fiscal_number,
			i.issued_at, i.discount::text, i.total::text, i.payment_method, i.notes,
			c.name, c.document, c.email, c.street, c.number, c.district,
			c.city, c.city_code, c.state, c.zip_code
		FROM invoices i
		JOIN clients c ON c.id = i.client_id
		WHERE i.id = $1 AND i.tenant_id = $2
	`, invoiceID, tenantID).Scan(
		&inv.ID, &inv.TenantID, &inv.Number, &inv.Status, &inv.FiscalStatus, &fiscalNumber,
		&inv.IssuedAt, &discount, &total, &inv.PaymentMethod, &inv.Notes,
		&c.Name, &c.Document, &c.Email, &c.Street, &c.Number, &c.District,
		&c.City, &c.CityCode, &c.State, &c.ZipCode,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fiscal.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("falha ao buscar fatura: %w", err)
	}

	if fiscalNumber != nil {
		inv.FiscalNumber = *fiscalNumber
	}
	if inv.Discount, err = decimal.NewFromString(discount); err != nil {
		return nil, fmt.Errorf("desconto inválido na fatura: %w", err)
	}
	if inv.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("total inválido na fatura: %w", err)
	}

	rows, err := conn.Query(ctx, `
		SELECT code, description, ncm, cfop, unit, quantity::text, unit_price::text, discount::text
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar itens da fatura: %w", err)
	}
	defer rows.Close()

	inv.Items = []fiscal.InvoiceItem{}
	for rows.Next() {
		var item fiscal.InvoiceItem
		var qty, price, disc string
		if err := rows.Scan(&item.Code, &item.Description, &item.NCM, &item.CFOP, &item.Unit, &qty, &price, &disc); err != nil {
			return nil, fmt.Errorf("falha ao ler item da fatura: %w", err)
		}
		if item.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("quantidade inválida no item %s: %w", item.Code, err)
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("preço inválido no item %s: %w", item.Code, err)
		}
		if item.Discount, err = decimal.NewFromString(disc); err != nil {
			return nil, fmt.Errorf("desconto inválido no item %s: %w", item.Code, err)
		}
		inv.Items = append(inv.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("erro ao iterar itens da fatura: %w", err)
	}

	return &inv, nil
}

// SetFiscalStatus atualiza a situação fiscal da fatura; fiscalNumber zero grava NULL
func (r *InvoiceRepository) SetFiscalStatus(ctx context.Context, tenantID, invoiceID string, status fiscal.InvoiceFiscalStatus, fiscalNumber int64) error {
	if _, err := uuid.Parse(invoiceID); err != nil {
		return fiscal.ErrInvoiceNotFound
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	var number *int64
	if fiscalNumber > 0 {
		number = &fiscalNumber
	}

	tag, err := conn.Exec(ctx, `
		UPDATE invoices
		SET fiscal_status = $1, fiscal_number = $2, updated_at = NOW()
		WHERE id = $3 AND tenant_id = $4
	`, status, number, invoiceID, tenantID)
	if err != nil {
		return fmt.Errorf("falha ao atualizar situação fiscal da fatura: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fiscal.ErrInvoiceNotFound
	}
	return nil
}
