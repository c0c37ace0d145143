package fiscal

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus define a situação financeira da fatura
type InvoiceStatus string

const (
	InvoiceOpen      InvoiceStatus = "open"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// InvoiceFiscalStatus define a situação fiscal da fatura
type InvoiceFiscalStatus string

const (
	FiscalNone       InvoiceFiscalStatus = "none"
	FiscalAuthorized InvoiceFiscalStatus = "authorized"
	FiscalCancelled  InvoiceFiscalStatus = "cancelled"
)

// Invoice representa a fatura de atendimento que origina a NFe
type Invoice struct {
	ID            string              `json:"id"`
	TenantID      string              `json:"tenant_id"`
	Number        string              `json:"number"`
	Status        InvoiceStatus       `json:"status"`
	FiscalStatus  InvoiceFiscalStatus `json:"fiscal_status"`
	FiscalNumber  int64               `json:"fiscal_number,omitempty"`
	IssuedAt      time.Time           `json:"issued_at"`
	Client        Client              `json:"client"`
	Items         []InvoiceItem       `json:"items"`
	Discount      decimal.Decimal     `json:"discount"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod string              `json:"payment_method"`
	Notes         string              `json:"notes,omitempty"`
}

// Client contém os dados do destinatário (tutor do animal)
type Client struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Email    string `json:"email,omitempty"`
	Street   string `json:"street,omitempty"`
	Number   string `json:"number,omitempty"`
	District string `json:"district,omitempty"`
	City     string `json:"city,omitempty"`
	CityCode string `json:"city_code,omitempty"`
	State    string `json:"state,omitempty"`
	ZipCode  string `json:"zip_code,omitempty"`
}

// InvoiceItem representa um produto ou serviço faturado
type InvoiceItem struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	NCM         string          `json:"ncm,omitempty"`
	CFOP        string          `json:"cfop,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
}

// Gross retorna quantidade x preço unitário
func (i InvoiceItem) Gross() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// ItemsGross soma o valor bruto de todos os itens
func (inv *Invoice) ItemsGross() decimal.Decimal {
	total := decimal.Zero
	for _, item := range inv.Items {
		total = total.Add(item.Gross())
	}
	return total
}
