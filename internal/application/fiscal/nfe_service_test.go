package fiscal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hugohenrick/erp-veterinaria/internal/adapter/authority"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/repository/memory"
	domain "github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/hugohenrick/erp-veterinaria/pkg/clock"
	"github.com/hugohenrick/erp-veterinaria/pkg/logger"
	"github.com/hugohenrick/erp-veterinaria/pkg/nfe"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tenantID    = "tenant-1"
	otherTenant = "tenant-2"
	invoiceID   = "inv-1"
)

var baseTime = time.Date(2024, time.March, 15, 13, 0, 0, 0, time.UTC)

type fixture struct {
	clock     *clock.Fake
	configs   *memory.ConfigRepository
	documents *memory.DocumentRepository
	invoices  *memory.InvoiceStore
	sim       *authority.Simulator
	service   *NFeService
}

func newFixture(t *testing.T, opts Options, simOpts ...authority.Option) *fixture {
	t.Helper()

	clk := clock.NewFake(baseTime)
	f := &fixture{
		clock:     clk,
		configs:   memory.NewConfigRepository(clk),
		documents: memory.NewDocumentRepository(),
		invoices:  memory.NewInvoiceStore(),
		sim:       authority.NewSimulator(append([]authority.Option{authority.WithClock(clk)}, simOpts...)...),
	}

	f.service = NewNFeService(Dependencies{
		Configs:   f.configs,
		Documents: f.documents,
		Invoices:  f.invoices,
		Authority: authority.NewResolver(f.sim, authority.NewProductionClient()),
		Clock:     clk,
		Logger:    logger.NewNop(),
	}, opts)

	f.seedConfig(t, tenantID, domain.Staging)
	f.invoices.Put(sampleInvoice(tenantID, invoiceID))
	return f
}

func (f *fixture) seedConfig(t *testing.T, tenant string, env domain.Environment) {
	t.Helper()
	ctx := context.Background()

	cfg, err := f.configs.GetOrCreate(ctx, tenant)
	require.NoError(t, err)
	require.NoError(t, cfg.Apply(completePatch(env), f.clock.Now()))
	cfg.AttachCertificate([]byte("pfx"), "sealed", f.clock.Now().AddDate(1, 0, 0), f.clock.Now())
	require.NoError(t, f.configs.Save(ctx, cfg))
}

func completePatch(env domain.Environment) domain.ConfigPatch {
	str := func(s string) *string { return &s }
	return domain.ConfigPatch{
		Environment:       &env,
		CNPJ:              str("11.222.333/0001-81"),
		StateRegistration: str("123456789110"),
		LegalName:         str("Clínica Veterinária Bicho Feliz Ltda"),
		TradeName:         str("Bicho Feliz"),
		Street:            str("Rua das Acácias"),
		Number:            str("100"),
		District:          str("Centro"),
		MunicipalityCode:  str("3550308"),
		MunicipalityName:  str("São Paulo"),
		State:             str("SP"),
		PostalCode:        str("01001-000"),
	}
}

func sampleInvoice(tenant, id string) *domain.Invoice {
	return &domain.Invoice{
		ID:           id,
		TenantID:     tenant,
		Number:       "INV-2024-000001",
		Status:       domain.InvoicePaid,
		FiscalStatus: domain.FiscalNone,
		IssuedAt:     baseTime,
		Client: domain.Client{
			Name:     "Maria Souza",
			Document: "529.982.247-25",
			Email:    "maria@example.com",
		},
		Items: []domain.InvoiceItem{
			{Code: "CONS01", Description: "Consulta clínica", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("150.00")},
			{Code: "VAC10", Description: "Vacina V10", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("85.50")},
		},
		Discount:      decimal.RequireFromString("10.00"),
		Total:         decimal.RequireFromString("311.00"),
		PaymentMethod: "pix",
	}
}

func eventKinds(t *testing.T, f *fixture, documentID string) []domain.EventKind {
	t.Helper()
	events, err := f.service.Events(context.Background(), tenantID, documentID)
	require.NoError(t, err)
	kinds := make([]domain.EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestNFeService_GenerateAndTransmit(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	doc, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, doc.Status)
	assert.Equal(t, int64(1), doc.Sequence)
	assert.Equal(t, 0, doc.Attempts)
	require.Len(t, doc.AccessKey, nfe.AccessKeyLength)
	assert.Equal(t, "000000001", doc.AccessKey[25:34])
	assert.True(t, strings.HasPrefix(doc.AccessKey, "352403"))
	assert.Contains(t, doc.XML, "NFe"+doc.AccessKey)

	parsed, err := nfe.ParseAccessKey(doc.AccessKey)
	require.NoError(t, err)
	assert.Equal(t, doc.ControlCode, parsed.ControlCode)

	authorized, err := f.service.Transmit(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, authorized.Status)
	assert.Len(t, authorized.Protocol, 15)
	assert.Equal(t, authority.CodeAuthorized, authorized.ResponseCode)
	assert.Equal(t, 1, authorized.Attempts)
	require.NotNil(t, authorized.AuthorizedAt)

	inv, err := f.invoices.GetInvoiceWithItems(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, domain.FiscalAuthorized, inv.FiscalStatus)
	assert.Equal(t, int64(1), inv.FiscalNumber)

	assert.Equal(t, []domain.EventKind{
		domain.EventGenerated,
		domain.EventTransmit,
		domain.EventAuthorized,
	}, eventKinds(t, f, doc.ID))
}

func TestNFeService_GenerateRejectsSecondAuthorization(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	doc, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	_, err = f.service.Transmit(ctx, tenantID, doc.ID)
	require.NoError(t, err)

	_, err = f.service.Generate(ctx, tenantID, invoiceID)
	assert.ErrorIs(t, err, domain.ErrDuplicateAuthorization)

	cfg, err := f.configs.FindByTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.LastSequence)
}

func TestNFeService_SequenceIsMonotonic(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	var last int64
	for i, id := range []string{"inv-a", "inv-b", "inv-c"} {
		f.invoices.Put(sampleInvoice(tenantID, id))
		doc, err := f.service.Generate(ctx, tenantID, id)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), doc.Sequence)
		assert.Greater(t, doc.Sequence, last)
		last = doc.Sequence
	}
}

func TestNFeService_GeneratePreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("tenant sem configuração", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.invoices.Put(sampleInvoice(otherTenant, "inv-x"))
		_, err := f.service.Generate(ctx, otherTenant, "inv-x")
		assert.ErrorIs(t, err, domain.ErrConfigIncomplete)
	})

	t.Run("inscrição estadual ausente", func(t *testing.T) {
		f := newFixture(t, Options{})
		cfg, err := f.configs.FindByTenant(ctx, tenantID)
		require.NoError(t, err)
		cfg.StateRegistration = ""
		require.NoError(t, f.configs.Save(ctx, cfg))

		_, err = f.service.Generate(ctx, tenantID, invoiceID)
		assert.ErrorIs(t, err, domain.ErrConfigIncomplete)
		assert.Contains(t, err.Error(), "state_registration")
	})

	t.Run("certificado ausente", func(t *testing.T) {
		f := newFixture(t, Options{})
		cfg, err := f.configs.FindByTenant(ctx, tenantID)
		require.NoError(t, err)
		cfg.CertificateData = nil
		require.NoError(t, f.configs.Save(ctx, cfg))

		_, err = f.service.Generate(ctx, tenantID, invoiceID)
		assert.ErrorIs(t, err, domain.ErrCertificateMissing)
	})

	t.Run("certificado vencido", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.clock.Advance(2 * 365 * 24 * time.Hour)
		_, err := f.service.Generate(ctx, tenantID, invoiceID)
		assert.ErrorIs(t, err, domain.ErrCertificateExpired)
	})

	t.Run("fatura inexistente", func(t *testing.T) {
		f := newFixture(t, Options{})
		_, err := f.service.Generate(ctx, tenantID, "nao-existe")
		assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
	})

	t.Run("fatura de outro tenant", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.invoices.Put(sampleInvoice(otherTenant, "inv-other"))
		_, err := f.service.Generate(ctx, tenantID, "inv-other")
		assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
	})

	t.Run("fatura cancelada", func(t *testing.T) {
		f := newFixture(t, Options{})
		inv := sampleInvoice(tenantID, "inv-cancelled")
		inv.Status = domain.InvoiceCancelled
		f.invoices.Put(inv)

		_, err := f.service.Generate(ctx, tenantID, "inv-cancelled")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("fatura sem itens", func(t *testing.T) {
		f := newFixture(t, Options{})
		inv := sampleInvoice(tenantID, "inv-empty")
		inv.Items = nil
		f.invoices.Put(inv)

		_, err := f.service.Generate(ctx, tenantID, "inv-empty")
		assert.ErrorIs(t, err, domain.ErrInvoiceWithoutItems)
	})
}

func TestNFeService_TransmitRejectedThenRetried(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	doc, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)

	f.sim.SetRejectRule(func(domain.SubmitRequest) (domain.Rejected, bool) {
		return domain.Rejected{Code: "778", Message: "Rejeição: Informado NCM inexistente"}, true
	})

	_, err = f.service.Transmit(ctx, tenantID, doc.ID)
	require.ErrorIs(t, err, domain.ErrAuthorityRejected)

	var authErr *domain.AuthorityError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "778", authErr.Code)

	rejected, err := f.service.Status(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	assert.Equal(t, "778", rejected.ResponseCode)
	assert.Equal(t, 1, rejected.Attempts)

	f.sim.SetRejectRule(nil)
	authorized, err := f.service.Transmit(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, authorized.Status)
	assert.Equal(t, 2, authorized.Attempts)
	assert.Equal(t, doc.Sequence, authorized.Sequence)
	assert.Equal(t, doc.AccessKey, authorized.AccessKey)
}

func TestNFeService_TransmitUnavailableReturnsToPending(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	doc, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)

	f.sim.FailNext(1)
	_, err = f.service.Transmit(ctx, tenantID, doc.ID)
	require.ErrorIs(t, err, domain.ErrAuthorityUnavailable)

	pending, err := f.service.Status(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, pending.Status)
	assert.Equal(t, 1, pending.Attempts)
	assert.Equal(t, doc.Sequence, pending.Sequence)

	authorized, err := f.service.Transmit(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, authorized.Status)
	assert.Equal(t, 2, authorized.Attempts)

	assert.Equal(t, []domain.EventKind{
		domain.EventGenerated,
		domain.EventTransmit,
		domain.EventUnavailable,
		domain.EventTransmit,
		domain.EventAuthorized,
	}, eventKinds(t, f, doc.ID))
}

func TestNFeService_TransmitTimeout(t *testing.T) {
	f := newFixture(t, Options{}, authority.WithLatency(time.Second))

	doc, err := f.service.Generate(context.Background(), tenantID, invoiceID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = f.service.Transmit(ctx, tenantID, doc.ID)
	require.ErrorIs(t, err, domain.ErrAuthorityUnavailable)

	pending, err := f.service.Status(context.Background(), tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, pending.Status)
}

func TestNFeService_TransmitDefaultTimeout(t *testing.T) {
	f := newFixture(t, Options{AuthorityTimeout: 20 * time.Millisecond}, authority.WithLatency(time.Second))

	doc, err := f.service.Generate(context.Background(), tenantID, invoiceID)
	require.NoError(t, err)

	_, err = f.service.Transmit(context.Background(), tenantID, doc.ID)
	assert.ErrorIs(t, err, domain.ErrAuthorityUnavailable)
}

func TestNFeService_MaxAttempts(t *testing.T) {
	f := newFixture(t, Options{MaxAttempts: 2})
	ctx := context.Background()

	doc, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)

	f.sim.FailNext(10)
	for i := 0; i < 2; i++ {
		_, err = f.service.Transmit(ctx, tenantID, doc.ID)
		require.ErrorIs(t, err, domain.ErrAuthorityUnavailable)
	}

	_, err = f.service.Transmit(ctx, tenantID, doc.ID)
	assert.ErrorIs(t, err, domain.ErrMaxAttemptsExceeded)
	assert.Equal(t, 2, f.sim.Submissions())
}

func TestNFeService_TransmitInvalidStates(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	doc, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	_, err = f.service.Transmit(ctx, tenantID, doc.ID)
	require.NoError(t, err)

	_, err = f.service.Transmit(ctx, tenantID, doc.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.service.Transmit(ctx, tenantID, "nao-existe")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	_, err = f.service.Transmit(ctx, otherTenant, doc.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestNFeService_ConcurrentTransmitSubmitsOnce(t *testing.T) {
	f := newFixture(t, Options{}, authority.WithLatency(50*time.Millisecond))
	ctx := context.Background()

	doc, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)

	const workers = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Transmit(ctx, tenantID, doc.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrInvalidState):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, 1, f.sim.Submissions())
}

func TestNFeService_StaleProcessingIsReclaimed(t *testing.T) {
	f := newFixture(t, Options{StaleProcessingAfter: 2 * time.Minute})
	ctx := context.Background()

	doc, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)

	// Simula um processo que caiu após marcar o documento como processing.
	stuck, err := f.documents.FindByID(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	stuck.StartAttempt(f.clock.Now())
	require.NoError(t, f.documents.Update(ctx, stuck, domain.StatusPending))

	_, err = f.service.Transmit(ctx, tenantID, doc.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	f.clock.Advance(3 * time.Minute)
	authorized, err := f.service.Transmit(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, authorized.Status)
	assert.Equal(t, 2, authorized.Attempts)
}

func TestNFeService_ReclaimStale(t *testing.T) {
	f := newFixture(t, Options{StaleProcessingAfter: time.Minute})
	ctx := context.Background()

	doc, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)

	stuck, err := f.documents.FindByID(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	stuck.StartAttempt(f.clock.Now())
	require.NoError(t, f.documents.Update(ctx, stuck, domain.StatusPending))

	n, err := f.service.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Advance(2 * time.Minute)
	n, err = f.service.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := f.service.Status(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, pending.Status)
	assert.Contains(t, eventKinds(t, f, doc.ID), domain.EventReclaimed)
}

func TestNFeService_ProductionNotImplemented(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.seedConfig(t, otherTenant, domain.Production)
	f.invoices.Put(sampleInvoice(otherTenant, "inv-prod"))

	doc, err := f.service.Generate(ctx, otherTenant, "inv-prod")
	require.NoError(t, err)
	assert.Equal(t, domain.Production, doc.Environment)
	assert.NotContains(t, doc.XML, StagingRecipientName)

	_, err = f.service.Transmit(ctx, otherTenant, doc.ID)
	require.ErrorIs(t, err, domain.ErrNotImplemented)

	pending, err := f.service.Status(ctx, otherTenant, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, pending.Status)
}

func authorizedDocument(t *testing.T, f *fixture) *domain.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	doc, err = f.service.Transmit(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	return doc
}

const validReason = "Erro na digitação dos itens da fatura"

func TestNFeService_Cancel(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	doc := authorizedDocument(t, f)

	f.clock.Advance(time.Hour)
	cancelled, err := f.service.Cancel(ctx, tenantID, doc.ID, "  "+validReason+"  ")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.True(t, cancelled.Cancelled)
	assert.Equal(t, validReason, cancelled.CancelReason)
	assert.Len(t, cancelled.CancelProtocol, 15)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, doc.Protocol, cancelled.Protocol)

	inv, err := f.invoices.GetInvoiceWithItems(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, domain.FiscalCancelled, inv.FiscalStatus)

	_, err = f.service.Cancel(ctx, tenantID, doc.ID, validReason)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestNFeService_CancelValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("justificativa curta", func(t *testing.T) {
		f := newFixture(t, Options{})
		doc := authorizedDocument(t, f)

		_, err := f.service.Cancel(ctx, tenantID, doc.ID, "  erro        ")
		assert.ErrorIs(t, err, domain.ErrReasonTooShort)

		current, err := f.service.Status(ctx, tenantID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAuthorized, current.Status)
		assert.Equal(t, 0, f.sim.Cancellations())
	})

	t.Run("justificativa longa", func(t *testing.T) {
		f := newFixture(t, Options{})
		doc := authorizedDocument(t, f)

		_, err := f.service.Cancel(ctx, tenantID, doc.ID, strings.Repeat("a", 256))
		assert.ErrorIs(t, err, domain.ErrReasonTooLong)
	})

	t.Run("prazo expirado", func(t *testing.T) {
		f := newFixture(t, Options{})
		doc := authorizedDocument(t, f)

		f.clock.Advance(24*time.Hour + time.Second)
		_, err := f.service.Cancel(ctx, tenantID, doc.ID, validReason)
		assert.ErrorIs(t, err, domain.ErrCancellationWindowExpired)
	})

	t.Run("documento não autorizado", func(t *testing.T) {
		f := newFixture(t, Options{})
		doc, err := f.service.Generate(ctx, tenantID, invoiceID)
		require.NoError(t, err)

		_, err = f.service.Cancel(ctx, tenantID, doc.ID, validReason)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	})
}

func TestNFeService_CancelAuthorityFailuresKeepAuthorized(t *testing.T) {
	ctx := context.Background()

	t.Run("rejeitado", func(t *testing.T) {
		f := newFixture(t, Options{}, authority.WithCancelRejectRule(func(domain.CancelRequest) (domain.Rejected, bool) {
			return domain.Rejected{Code: "580", Message: "Rejeição: Evento exige NF-e autorizada"}, true
		}))
		doc := authorizedDocument(t, f)

		_, err := f.service.Cancel(ctx, tenantID, doc.ID, validReason)
		require.ErrorIs(t, err, domain.ErrAuthorityRejected)

		current, err := f.service.Status(ctx, tenantID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAuthorized, current.Status)
		assert.False(t, current.Cancelled)
	})

	t.Run("indisponível", func(t *testing.T) {
		f := newFixture(t, Options{})
		doc := authorizedDocument(t, f)

		f.sim.FailNext(1)
		_, err := f.service.Cancel(ctx, tenantID, doc.ID, validReason)
		require.ErrorIs(t, err, domain.ErrAuthorityUnavailable)

		current, err := f.service.Status(ctx, tenantID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAuthorized, current.Status)

		cancelled, err := f.service.Cancel(ctx, tenantID, doc.ID, validReason)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	})
}

func TestNFeService_ReadOperations(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	doc, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)

	first, err := f.service.Status(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	second, err := f.service.Status(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	body, err := f.service.XML(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(body, "<?xml"))

	docs, err := f.service.ListByInvoice(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)

	_, err = f.service.Status(ctx, otherTenant, doc.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	_, err = f.service.Events(ctx, otherTenant, doc.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

// gatedAuthority aceita tudo, mas segura a submissão do documento blockID até release
type gatedAuthority struct {
	blockID string
	started chan time.Time
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func newGatedAuthority(blockID string) *gatedAuthority {
	return &gatedAuthority{
		blockID: blockID,
		started: make(chan time.Time, 1),
		release: make(chan struct{}),
	}
}

func (g *gatedAuthority) Submit(ctx context.Context, req domain.SubmitRequest) (domain.Outcome, error) {
	g.mu.Lock()
	g.calls++
	protocol := fmt.Sprintf("1352400000%05d", g.calls)
	g.mu.Unlock()

	if req.DocumentID == g.blockID {
		deadline, _ := ctx.Deadline()
		g.started <- deadline
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return domain.Accepted{Protocol: protocol, Code: authority.CodeAuthorized, Message: "Autorizado o uso da NF-e"}, nil
}

func (g *gatedAuthority) Cancel(ctx context.Context, req domain.CancelRequest) (domain.Outcome, error) {
	return nil, errors.New("cancelamento não suportado")
}

func (g *gatedAuthority) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (f *fixture) useAuthority(client domain.AuthorityClient, opts Options) {
	f.service = NewNFeService(Dependencies{
		Configs:   f.configs,
		Documents: f.documents,
		Invoices:  f.invoices,
		Authority: authority.NewResolver(client, authority.NewProductionClient()),
		Clock:     f.clock,
		Logger:    logger.NewNop(),
	}, opts)
}

func waitStarted(t *testing.T, g *gatedAuthority) time.Time {
	t.Helper()
	select {
	case deadline := <-g.started:
		return deadline
	case <-time.After(2 * time.Second):
		t.Fatal("submissão não chegou à SEFAZ")
		return time.Time{}
	}
}

func TestNFeService_GenerateTwiceForSameInvoice(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	first, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	second, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(2), second.Sequence)
	assert.NotEqual(t, first.AccessKey, second.AccessKey)
	assert.NotEqual(t, first.ID, second.ID)

	docs, err := f.service.ListByInvoice(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestNFeService_GenerateAfterCancellation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	original := authorizedDocument(t, f)

	f.clock.Advance(time.Hour)
	_, err := f.service.Cancel(ctx, tenantID, original.ID, validReason)
	require.NoError(t, err)

	replacement, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), replacement.Sequence)
	assert.NotEqual(t, original.AccessKey, replacement.AccessKey)

	authorized, err := f.service.Transmit(ctx, tenantID, replacement.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, authorized.Status)

	current, err := f.documents.FindAuthorizedByInvoice(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, current.ID)
}

func TestNFeService_TransmitRefusesSecondDocumentOfAuthorizedInvoice(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	a, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	b, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)

	_, err = f.service.Transmit(ctx, tenantID, a.ID)
	require.NoError(t, err)

	_, err = f.service.Transmit(ctx, tenantID, b.ID)
	require.ErrorIs(t, err, domain.ErrDuplicateAuthorization)
	assert.Equal(t, 1, f.sim.Submissions())

	stored, err := f.service.Status(ctx, tenantID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, 0, stored.Attempts)
}

func TestNFeService_AuthorizationRaceRejectsLoser(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	a, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	b, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)

	gate := newGatedAuthority(b.ID)
	f.useAuthority(gate, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := f.service.Transmit(ctx, tenantID, b.ID)
		done <- err
	}()
	waitStarted(t, gate)

	_, err = f.service.Transmit(ctx, tenantID, a.ID)
	require.NoError(t, err)

	close(gate.release)
	require.ErrorIs(t, <-done, domain.ErrDuplicateAuthorization)

	loser, err := f.service.Status(ctx, tenantID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, loser.Status)
	assert.Equal(t, duplicateCode, loser.ResponseCode)
	assert.Empty(t, loser.Protocol)

	events, err := f.service.Events(ctx, tenantID, b.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventRejected, last.Kind)
	assert.NotEmpty(t, last.Protocol)

	_, err = f.service.Transmit(ctx, tenantID, b.ID)
	assert.ErrorIs(t, err, domain.ErrDuplicateAuthorization)
	assert.Equal(t, 2, gate.Calls())
}

func TestNFeService_InFlightTransmitIsNotReclaimed(t *testing.T) {
	opts := Options{AuthorityTimeout: 30 * time.Second, StaleProcessingAfter: 45 * time.Second}
	f := newFixture(t, opts)
	ctx := context.Background()

	doc, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)

	gate := newGatedAuthority(doc.ID)
	f.useAuthority(gate, opts)

	callerCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	started := time.Now()
	done := make(chan error, 1)
	go func() {
		_, err := f.service.Transmit(callerCtx, tenantID, doc.ID)
		done <- err
	}()
	deadline := waitStarted(t, gate)
	assert.LessOrEqual(t, deadline.Sub(started), 34*time.Second, "chamada deve terminar antes do documento ficar obsoleto")

	f.clock.Advance(time.Minute)

	_, err = f.service.Transmit(ctx, tenantID, doc.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	n, err := f.service.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	close(gate.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, gate.Calls())

	authorized, err := f.service.Status(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, authorized.Status)
}

func TestNFeService_ReclaimEventOnlyWhenTransmitProceeds(t *testing.T) {
	f := newFixture(t, Options{MaxAttempts: 1, StaleProcessingAfter: time.Minute})
	ctx := context.Background()

	doc, err := f.service.Generate(ctx, tenantID, invoiceID)
	require.NoError(t, err)

	stuck, err := f.documents.FindByID(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	stuck.StartAttempt(f.clock.Now())
	require.NoError(t, f.documents.Update(ctx, stuck, domain.StatusPending))

	f.clock.Advance(2 * time.Minute)
	_, err = f.service.Transmit(ctx, tenantID, doc.ID)
	require.ErrorIs(t, err, domain.ErrMaxAttemptsExceeded)

	assert.NotContains(t, eventKinds(t, f, doc.ID), domain.EventReclaimed)
}
