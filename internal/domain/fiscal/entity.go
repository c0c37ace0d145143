package fiscal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugohenrick/erp-veterinaria/pkg/nfe"
	"github.com/shopspring/decimal"
)

// Environment define o ambiente da SEFAZ
type Environment string

const (
	Staging    Environment = "staging"
	Production Environment = "production"
)

// Valid verifica se o ambiente é conhecido
func (e Environment) Valid() bool {
	return e == Staging || e == Production
}

// Code retorna o tpAmb da NFe (1 = produção, 2 = homologação)
func (e Environment) Code() int {
	if e == Production {
		return 1
	}
	return 2
}

// Regimes tributários (CRT)
const (
	RegimeSimplesNacional       = 1
	RegimeSimplesExcessoReceita = 2
	RegimeNormal                = 3
)

// Address contém o endereço do emitente
type Address struct {
	Street           string `json:"street"`
	Number           string `json:"number"`
	District         string `json:"district"`
	MunicipalityCode string `json:"municipality_code"`
	MunicipalityName string `json:"municipality_name"`
	State            string `json:"state"`
	PostalCode       string `json:"postal_code"`
}

// Config contém a configuração fiscal de um tenant
type Config struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	Environment       Environment `json:"environment"`
	CNPJ              string      `json:"cnpj"`
	StateRegistration string      `json:"state_registration"`
	LegalName         string      `json:"legal_name"`
	TradeName         string      `json:"trade_name"`
	Address           Address     `json:"address"`

	Series         int             `json:"series"`
	TaxRegime      int             `json:"tax_regime"`
	ServiceTaxRate decimal.Decimal `json:"service_tax_rate"`

	CertificateData      []byte     `json:"-"` // Não expor ao serializar para JSON
	CertificatePassword  string     `json:"-"` // Armazenada selada
	CertificateExpiresAt *time.Time `json:"certificate_expires_at,omitempty"`

	LastSequence int64 `json:"last_sequence"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConfig cria a configuração padrão de um tenant (homologação, sequência zero)
func NewConfig(tenantID string, now time.Time) (*Config, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant ID é obrigatório", ErrInvalidConfig)
	}

	return &Config{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		Environment:    Staging,
		Series:         1,
		TaxRegime:      RegimeSimplesNacional,
		ServiceTaxRate: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ConfigPatch contém os campos opcionais de uma atualização parcial
type ConfigPatch struct {
	Environment       *Environment
	CNPJ              *string
	StateRegistration *string
	LegalName         *string
	TradeName         *string
	Street            *string
	Number            *string
	District          *string
	MunicipalityCode  *string
	MunicipalityName  *string
	State             *string
	PostalCode        *string
	Series            *int
	TaxRegime         *int
	ServiceTaxRate    *decimal.Decimal
}

// Apply mescla os campos informados e valida o resultado
func (c *Config) Apply(p ConfigPatch, now time.Time) error {
	next := *c

	if p.Environment != nil {
		next.Environment = *p.Environment
	}
	if p.CNPJ != nil {
		next.CNPJ = nfe.OnlyDigits(*p.CNPJ)
	}
	if p.StateRegistration != nil {
		next.StateRegistration = strings.TrimSpace(*p.StateRegistration)
	}
	if p.LegalName != nil {
		next.LegalName = strings.TrimSpace(*p.LegalName)
	}
	if p.TradeName != nil {
		next.TradeName = strings.TrimSpace(*p.TradeName)
	}
	if p.Street != nil {
		next.Address.Street = strings.TrimSpace(*p.Street)
	}
	if p.Number != nil {
		next.Address.Number = strings.TrimSpace(*p.Number)
	}
	if p.District != nil {
		next.Address.District = strings.TrimSpace(*p.District)
	}
	if p.MunicipalityCode != nil {
		next.Address.MunicipalityCode = nfe.OnlyDigits(*p.MunicipalityCode)
	}
	if p.MunicipalityName != nil {
		next.Address.MunicipalityName = strings.TrimSpace(*p.MunicipalityName)
	}
	if p.State != nil {
		next.Address.State = strings.ToUpper(strings.TrimSpace(*p.State))
	}
	if p.PostalCode != nil {
		next.Address.PostalCode = nfe.OnlyDigits(*p.PostalCode)
	}
	if p.Series != nil {
		next.Series = *p.Series
	}
	if p.TaxRegime != nil {
		next.TaxRegime = *p.TaxRegime
	}
	if p.ServiceTaxRate != nil {
		next.ServiceTaxRate = *p.ServiceTaxRate
	}

	if err := next.Validate(); err != nil {
		return err
	}

	next.UpdatedAt = now
	*c = next
	return nil
}

// Validate verifica os valores preenchidos; campos vazios são tratados por MissingFields
func (c *Config) Validate() error {
	if !c.Environment.Valid() {
		return fmt.Errorf("%w: ambiente deve ser staging ou production", ErrInvalidConfig)
	}
	if c.CNPJ != "" && !nfe.ValidCNPJ(c.CNPJ) {
		return fmt.Errorf("%w: CNPJ %s inválido", ErrInvalidConfig, c.CNPJ)
	}
	if c.Address.State != "" && !nfe.IsValidState(c.Address.State) {
		return fmt.Errorf("%w: UF %s inválida", ErrInvalidConfig, c.Address.State)
	}
	if c.Address.MunicipalityCode != "" && len(c.Address.MunicipalityCode) != 7 {
		return fmt.Errorf("%w: código do município deve ter 7 dígitos", ErrInvalidConfig)
	}
	if c.Address.PostalCode != "" && len(c.Address.PostalCode) != 8 {
		return fmt.Errorf("%w: CEP deve ter 8 dígitos", ErrInvalidConfig)
	}
	if c.Series < 1 || c.Series > 999 {
		return fmt.Errorf("%w: série deve estar entre 1 e 999", ErrInvalidConfig)
	}
	if c.TaxRegime < RegimeSimplesNacional || c.TaxRegime > RegimeNormal {
		return fmt.Errorf("%w: regime tributário deve ser 1, 2 ou 3", ErrInvalidConfig)
	}
	if c.ServiceTaxRate.IsNegative() || c.ServiceTaxRate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: alíquota deve estar entre 0 e 100", ErrInvalidConfig)
	}
	return nil
}

// MissingFields lista os campos obrigatórios para emissão que não foram preenchidos
func (c *Config) MissingFields() []string {
	var missing []string
	if c.CNPJ == "" {
		missing = append(missing, "cnpj")
	}
	if c.StateRegistration == "" {
		missing = append(missing, "state_registration")
	}
	if c.LegalName == "" {
		missing = append(missing, "legal_name")
	}
	if c.Address.State == "" {
		missing = append(missing, "address.state")
	}
	if c.Address.MunicipalityCode == "" {
		missing = append(missing, "address.municipality_code")
	}
	return missing
}

// HasCertificate verifica se há um certificado digital armazenado
func (c *Config) HasCertificate() bool {
	return len(c.CertificateData) > 0
}

// CertificateExpired verifica se o certificado está vencido
func (c *Config) CertificateExpired(now time.Time) bool {
	return c.CertificateExpiresAt != nil && now.After(*c.CertificateExpiresAt)
}

// AttachCertificate armazena o certificado e a senha já selada
func (c *Config) AttachCertificate(data []byte, sealedPassword string, expiresAt time.Time, now time.Time) {
	c.CertificateData = data
	c.CertificatePassword = sealedPassword
	c.CertificateExpiresAt = &expiresAt
	c.UpdatedAt = now
}
