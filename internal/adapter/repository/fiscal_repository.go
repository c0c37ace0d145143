// Package repository contém as implementações PostgreSQL dos repositórios de domínio.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const configColumns = `
	id, tenant_id, environment, cnpj, state_registration, legal_name, trade_name,
	street, number, district, municipality_code, municipality_name, state, postal_code,
	series, tax_regime, service_tax_rate::text,
	certificate_data, certificate_password, certificate_expires_at,
	last_sequence, created_at, updated_at`

// FiscalConfigRepository implementa a interface fiscal.ConfigRepository
type FiscalConfigRepository struct {
	db *pgxpool.Pool
}

// NewFiscalConfigRepository cria uma nova instância de FiscalConfigRepository
func NewFiscalConfigRepository(db *pgxpool.Pool) *FiscalConfigRepository {
	return &FiscalConfigRepository{
		db: db,
	}
}

// FindByTenant implementa o método FindByTenant da interface fiscal.ConfigRepository
func (r *FiscalConfigRepository) FindByTenant(ctx context.Context, tenantID string) (*fiscal.Config, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := "SELECT" + configColumns + " FROM fiscal_configs WHERE tenant_id = $1"
	cfg, err := scanConfig(conn.QueryRow(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fiscal.ErrConfigNotFound
		}
		return nil, fmt.Errorf("falha ao buscar configuração fiscal: %w", err)
	}
	return cfg, nil
}

// GetOrCreate implementa o método GetOrCreate da interface fiscal.ConfigRepository
func (r *FiscalConfigRepository) GetOrCreate(ctx context.Context, tenantID string) (*fiscal.Config, error) {
	cfg, err := fiscal.NewConfig(tenantID, time.Now())
	if err != nil {
		return nil, err
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	// Duas requisições simultâneas para o mesmo tenant convergem para a mesma linha
	_, err = conn.Exec(ctx, `
		INSERT INTO fiscal_configs (id, tenant_id, environment, series, tax_regime, service_tax_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)
		ON CONFLICT (tenant_id) DO NOTHING
	`, cfg.ID, cfg.TenantID, cfg.Environment, cfg.Series, cfg.TaxRegime, cfg.ServiceTaxRate.String(), cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("falha ao criar configuração fiscal padrão: %w", err)
	}

	query := "SELECT" + configColumns + " FROM fiscal_configs WHERE tenant_id = $1"
	stored, err := scanConfig(conn.QueryRow(ctx, query, tenantID))
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar configuração fiscal: %w", err)
	}
	return stored, nil
}

// Save implementa o método Save da interface fiscal.ConfigRepository.
// last_sequence é alterada apenas por NextSequence.
func (r *FiscalConfigRepository) Save(ctx context.Context, config *fiscal.Config) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := `
		INSERT INTO fiscal_configs (
			id, tenant_id, environment, cnpj, state_registration, legal_name, trade_name,
			street, number, district, municipality_code, municipality_name, state, postal_code,
			series, tax_regime, service_tax_rate,
			certificate_data, certificate_password, certificate_expires_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17::numeric, $18, $19, $20, $21, $22
		)
		ON CONFLICT (tenant_id) DO UPDATE SET
			environment = EXCLUDED.environment,
			cnpj = EXCLUDED.cnpj,
			state_registration = EXCLUDED.state_registration,
			legal_name = EXCLUDED.legal_name,
			trade_name = EXCLUDED.trade_name,
			street = EXCLUDED.street,
			number = EXCLUDED.number,
			district = EXCLUDED.district,
			municipality_code = EXCLUDED.municipality_code,
			municipality_name = EXCLUDED.municipality_name,
			state = EXCLUDED.state,
			postal_code = EXCLUDED.postal_code,
			series = EXCLUDED.series,
			tax_regime = EXCLUDED.tax_regime,
			service_tax_rate = EXCLUDED.service_tax_rate,
			certificate_data = EXCLUDED.certificate_data,
			certificate_password = EXCLUDED.certificate_password,
			certificate_expires_at = EXCLUDED.certificate_expires_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, last_sequence
	`

	a := config.Address
	err = conn.QueryRow(ctx, query,
		config.ID, config.TenantID, config.Environment, config.CNPJ, config.StateRegistration,
		config.LegalName, config.TradeName,
		a.Street, a.Number, a.District, a.MunicipalityCode, a.MunicipalityName, a.State, a.PostalCode,
		config.Series, config.TaxRegime, config.ServiceTaxRate.String(),
		config.CertificateData, config.CertificatePassword, config.CertificateExpiresAt,
		config.CreatedAt, config.UpdatedAt,
	).Scan(&config.ID, &config.CreatedAt, &config.LastSequence)
	if err != nil {
		return fmt.Errorf("falha ao salvar configuração fiscal: %w", err)
	}

	return nil
}

// NextSequence implementa o método NextSequence da interface fiscal.ConfigRepository
func (r *FiscalConfigRepository) NextSequence(ctx context.Context, tenantID string) (int64, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	var next int64
	err = conn.QueryRow(ctx, `
		UPDATE fiscal_configs
		SET last_sequence = last_sequence + 1, updated_at = NOW()
		WHERE tenant_id = $1
		RETURNING last_sequence
	`, tenantID).Scan(&next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fiscal.ErrConfigNotFound
		}
		return 0, fmt.Errorf("falha ao reservar número da NFe: %w", err)
	}

	return next, nil
}

func scanConfig(row pgx.Row) (*fiscal.Config, error) {
	var cfg fiscal.Config
	var rate string

	err := row.Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Environment, &cfg.CNPJ, &cfg.StateRegistration,
		&cfg.LegalName, &cfg.TradeName,
		&cfg.Address.Street, &cfg.Address.Number, &cfg.Address.District,
		&cfg.Address.MunicipalityCode, &cfg.Address.MunicipalityName,
		&cfg.Address.State, &cfg.Address.PostalCode,
		&cfg.Series, &cfg.TaxRegime, &rate,
		&cfg.CertificateData, &cfg.CertificatePassword, &cfg.CertificateExpiresAt,
		&cfg.LastSequence, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cfg.ServiceTaxRate, err = decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("alíquota inválida no banco: %w", err)
	}
	return &cfg, nil
}
