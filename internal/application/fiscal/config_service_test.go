package fiscal

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/hugohenrick/erp-veterinaria/internal/adapter/certificate"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/repository/memory"
	domain "github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/hugohenrick/erp-veterinaria/pkg/clock"
	"github.com/hugohenrick/erp-veterinaria/pkg/logger"
	"github.com/hugohenrick/erp-veterinaria/pkg/secret"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

func newConfigService(t *testing.T) (*ConfigService, *memory.ConfigRepository, *clock.Fake) {
	t.Helper()

	clk := clock.NewFake(baseTime)
	repo := memory.NewConfigRepository(clk)
	box, err := secret.NewBox("chave-de-teste")
	require.NoError(t, err)

	return NewConfigService(repo, certificate.NewInspector(), box, clk, logger.NewNop()), repo, clk
}

func selfSignedPFX(t *testing.T, password string, notAfter time.Time) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "BICHO FELIZ LTDA:11222333000181"},
		NotBefore:    notAfter.AddDate(-1, 0, 0),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pfx, err := gopkcs12.Modern.Encode(key, cert, nil, password)
	require.NoError(t, err)
	return pfx
}

func TestConfigService_GetOrCreateDefaults(t *testing.T) {
	svc, _, _ := newConfigService(t)

	cfg, err := svc.GetOrCreate(context.Background(), tenantID)
	require.NoError(t, err)

	assert.Equal(t, tenantID, cfg.TenantID)
	assert.Equal(t, domain.Staging, cfg.Environment)
	assert.Equal(t, 1, cfg.Series)
	assert.Equal(t, int64(0), cfg.LastSequence)
	assert.NotEmpty(t, cfg.MissingFields())

	again, err := svc.GetOrCreate(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, again.ID)
}

func TestConfigService_UpdateMergesFields(t *testing.T) {
	svc, _, _ := newConfigService(t)
	ctx := context.Background()

	cfg, err := svc.Update(ctx, tenantID, completePatch(domain.Staging))
	require.NoError(t, err)
	assert.Empty(t, cfg.MissingFields())
	assert.Equal(t, "11222333000181", cfg.CNPJ)

	rate := decimal.RequireFromString("13.45")
	series := 2
	cfg, err = svc.Update(ctx, tenantID, domain.ConfigPatch{ServiceTaxRate: &rate, Series: &series})
	require.NoError(t, err)
	assert.Equal(t, "11222333000181", cfg.CNPJ)
	assert.Equal(t, 2, cfg.Series)
	assert.True(t, cfg.ServiceTaxRate.Equal(rate))
}

func TestConfigService_UpdateValidation(t *testing.T) {
	svc, _, _ := newConfigService(t)
	ctx := context.Background()

	bad := "11222333000182"
	_, err := svc.Update(ctx, tenantID, domain.ConfigPatch{CNPJ: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	uf := "XX"
	_, err = svc.Update(ctx, tenantID, domain.ConfigPatch{State: &uf})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	env := domain.Environment("sandbox")
	_, err = svc.Update(ctx, tenantID, domain.ConfigPatch{Environment: &env})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	cfg, err := svc.GetOrCreate(ctx, tenantID)
	require.NoError(t, err)
	assert.Empty(t, cfg.CNPJ)
}

func TestConfigService_UpdatePreservesSequence(t *testing.T) {
	svc, repo, _ := newConfigService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, tenantID)
	require.NoError(t, err)
	_, err = repo.NextSequence(ctx, tenantID)
	require.NoError(t, err)

	_, err = svc.Update(ctx, tenantID, completePatch(domain.Staging))
	require.NoError(t, err)

	seq, err := repo.NextSequence(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
}

func TestConfigService_AttachCertificate(t *testing.T) {
	svc, repo, _ := newConfigService(t)
	ctx := context.Background()
	notAfter := baseTime.AddDate(1, 0, 0)

	info, err := svc.AttachCertificate(ctx, tenantID, selfSignedPFX(t, "1234", notAfter), "1234")
	require.NoError(t, err)
	assert.Equal(t, "BICHO FELIZ LTDA:11222333000181", info.Subject)

	cfg, err := repo.FindByTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, cfg.HasCertificate())
	require.NotNil(t, cfg.CertificateExpiresAt)
	assert.True(t, cfg.CertificateExpiresAt.Equal(notAfter))
	assert.NotEqual(t, "1234", cfg.CertificatePassword)

	password, err := svc.CertificatePassword(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, "1234", password)
}

func TestConfigService_AttachCertificateErrors(t *testing.T) {
	svc, _, _ := newConfigService(t)
	ctx := context.Background()

	_, err := svc.AttachCertificate(ctx, tenantID, selfSignedPFX(t, "1234", baseTime.AddDate(1, 0, 0)), "errada")
	assert.ErrorIs(t, err, domain.ErrInvalidCertificate)

	_, err = svc.AttachCertificate(ctx, tenantID, []byte("lixo"), "1234")
	assert.ErrorIs(t, err, domain.ErrInvalidCertificate)

	_, err = svc.AttachCertificate(ctx, tenantID, selfSignedPFX(t, "1234", baseTime.Add(-time.Hour)), "1234")
	assert.ErrorIs(t, err, domain.ErrCertificateExpired)

	_, err = svc.CertificatePassword(ctx, "sem-config")
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
}
