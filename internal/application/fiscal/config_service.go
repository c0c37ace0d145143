// Package fiscal implementa os casos de uso de configuração fiscal e emissão de NFe.
package fiscal

import (
	"context"
	"fmt"

	domain "github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/hugohenrick/erp-veterinaria/pkg/clock"
	"github.com/hugohenrick/erp-veterinaria/pkg/logger"
)

// ConfigService gerencia a configuração fiscal de cada tenant
type ConfigService struct {
	repo      domain.ConfigRepository
	inspector domain.CertificateInspector
	sealer    domain.SecretSealer
	clock     clock.Clock
	logger    logger.Logger
}

// NewConfigService cria um novo serviço de configuração fiscal
func NewConfigService(repo domain.ConfigRepository, inspector domain.CertificateInspector, sealer domain.SecretSealer, clk clock.Clock, log logger.Logger) *ConfigService {
	return &ConfigService{
		repo:      repo,
		inspector: inspector,
		sealer:    sealer,
		clock:     clk,
		logger:    log,
	}
}

// GetOrCreate retorna a configuração do tenant, criando a padrão na primeira consulta
func (s *ConfigService) GetOrCreate(ctx context.Context, tenantID string) (*domain.Config, error) {
	cfg, err := s.repo.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("falha ao obter configuração fiscal: %w", err)
	}
	return cfg, nil
}

// Update aplica uma atualização parcial e persiste a configuração
func (s *ConfigService) Update(ctx context.Context, tenantID string, patch domain.ConfigPatch) (*domain.Config, error) {
	cfg, err := s.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	previous := cfg.Environment
	if err := cfg.Apply(patch, s.clock.Now()); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("falha ao salvar configuração fiscal: %w", err)
	}

	if previous != cfg.Environment {
		s.logger.Warn("Ambiente fiscal alterado", "tenant_id", tenantID, "from", previous, "to", cfg.Environment)
	}
	s.logger.Info("Configuração fiscal atualizada", "tenant_id", tenantID, "missing_fields", cfg.MissingFields())

	return cfg, nil
}

// AttachCertificate valida o arquivo PKCS#12, sela a senha e grava o certificado
func (s *ConfigService) AttachCertificate(ctx context.Context, tenantID string, data []byte, password string) (*domain.CertificateInfo, error) {
	info, err := s.inspector.Inspect(data, password)
	if err != nil {
		s.logger.Warn("Certificado digital recusado", "tenant_id", tenantID, "error", err)
		return nil, err
	}

	now := s.clock.Now()
	if now.After(info.NotAfter) {
		return nil, fmt.Errorf("%w: venceu em %s", domain.ErrCertificateExpired, info.NotAfter.Format("02/01/2006"))
	}

	sealed, err := s.sealer.Seal(password)
	if err != nil {
		return nil, fmt.Errorf("falha ao proteger senha do certificado: %w", err)
	}

	cfg, err := s.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cfg.AttachCertificate(data, sealed, info.NotAfter, now)

	if err := s.repo.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("falha ao salvar certificado: %w", err)
	}

	s.logger.Info("Certificado digital configurado",
		"tenant_id", tenantID,
		"subject", info.Subject,
		"expires_at", info.NotAfter,
	)
	return info, nil
}

// CertificatePassword devolve a senha do certificado já decifrada
func (s *ConfigService) CertificatePassword(ctx context.Context, tenantID string) (string, error) {
	cfg, err := s.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if !cfg.HasCertificate() {
		return "", domain.ErrCertificateMissing
	}
	return s.sealer.Open(cfg.CertificatePassword)
}
