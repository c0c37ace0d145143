package dto

import (
	"time"

	"github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/shopspring/decimal"
)

// FiscalConfigRequest representa uma atualização parcial da configuração fiscal.
// Campos ausentes permanecem inalterados.
type FiscalConfigRequest struct {
	Environment       *string `json:"environment,omitempty" binding:"omitempty,oneof=staging production"`
	CNPJ              *string `json:"cnpj,omitempty" binding:"omitempty,cnpj"`
	StateRegistration *string `json:"state_registration,omitempty" binding:"omitempty,max=20"`
	LegalName         *string `json:"legal_name,omitempty" binding:"omitempty,max=120"`
	TradeName         *string `json:"trade_name,omitempty" binding:"omitempty,max=120"`

	Street           *string `json:"street,omitempty" binding:"omitempty,max=120"`
	Number           *string `json:"number,omitempty" binding:"omitempty,max=20"`
	District         *string `json:"district,omitempty" binding:"omitempty,max=60"`
	MunicipalityCode *string `json:"municipality_code,omitempty" binding:"omitempty,len=7,numeric"`
	MunicipalityName *string `json:"municipality_name,omitempty" binding:"omitempty,max=60"`
	State            *string `json:"state,omitempty" binding:"omitempty,uf"`
	PostalCode       *string `json:"postal_code,omitempty" binding:"omitempty,max=9"`

	Series         *int             `json:"series,omitempty" binding:"omitempty,min=1,max=999"`
	TaxRegime      *int             `json:"tax_regime,omitempty" binding:"omitempty,min=1,max=3"`
	ServiceTaxRate *decimal.Decimal `json:"service_tax_rate,omitempty" swaggertype:"string" example:"12.50"`
}

// ToPatch converte a requisição no patch de domínio
func (r FiscalConfigRequest) ToPatch() fiscal.ConfigPatch {
	p := fiscal.ConfigPatch{
		CNPJ:              r.CNPJ,
		StateRegistration: r.StateRegistration,
		LegalName:         r.LegalName,
		TradeName:         r.TradeName,
		Street:            r.Street,
		Number:            r.Number,
		District:          r.District,
		MunicipalityCode:  r.MunicipalityCode,
		MunicipalityName:  r.MunicipalityName,
		State:             r.State,
		PostalCode:        r.PostalCode,
		Series:            r.Series,
		TaxRegime:         r.TaxRegime,
		ServiceTaxRate:    r.ServiceTaxRate,
	}
	if r.Environment != nil {
		env := fiscal.Environment(*r.Environment)
		p.Environment = &env
	}
	return p
}

// FiscalConfigResponse representa a configuração fiscal exposta pela API (sem segredos)
type FiscalConfigResponse struct {
	ID                string         `json:"id"`
	Environment       string         `json:"environment"`
	CNPJ              string         `json:"cnpj"`
	StateRegistration string         `json:"state_registration"`
	LegalName         string         `json:"legal_name"`
	TradeName         string         `json:"trade_name"`
	Address           fiscal.Address `json:"address"`
	Series            int            `json:"series"`
	TaxRegime         int            `json:"tax_regime"`
	ServiceTaxRate    string         `json:"service_tax_rate"`
	LastSequence      int64          `json:"last_sequence"`

	HasCertificate       bool       `json:"has_certificate"`
	CertificateExpiresAt *time.Time `json:"certificate_expires_at,omitempty"`

	// MissingFields lista o que falta para emitir; vazio quando pronto
	MissingFields []string `json:"missing_fields"`
	ReadyToIssue  bool     `json:"ready_to_issue"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFiscalConfigResponse cria um novo FiscalConfigResponse a partir da configuração
func NewFiscalConfigResponse(config *fiscal.Config) *FiscalConfigResponse {
	missing := config.MissingFields()
	if missing == nil {
		missing = []string{}
	}

	return &FiscalConfigResponse{
		ID:                   config.ID,
		Environment:          string(config.Environment),
		CNPJ:                 config.CNPJ,
		StateRegistration:    config.StateRegistration,
		LegalName:            config.LegalName,
		TradeName:            config.TradeName,
		Address:              config.Address,
		Series:               config.Series,
		TaxRegime:            config.TaxRegime,
		ServiceTaxRate:       config.ServiceTaxRate.StringFixed(2),
		LastSequence:         config.LastSequence,
		HasCertificate:       config.HasCertificate(),
		CertificateExpiresAt: config.CertificateExpiresAt,
		MissingFields:        missing,
		ReadyToIssue:         len(missing) == 0 && config.HasCertificate(),
		CreatedAt:            config.CreatedAt,
		UpdatedAt:            config.UpdatedAt,
	}
}

// CertificateResponse representa os dados públicos do certificado enviado
type CertificateResponse struct {
	Subject   string    `json:"subject"`
	Issuer    string    `json:"issuer"`
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
}

// NewCertificateResponse cria a resposta a partir dos dados extraídos do PKCS#12
func NewCertificateResponse(info *fiscal.CertificateInfo) *CertificateResponse {
	return &CertificateResponse{
		Subject:   info.Subject,
		Issuer:    info.Issuer,
		NotBefore: info.NotBefore,
		NotAfter:  info.NotAfter,
	}
}
