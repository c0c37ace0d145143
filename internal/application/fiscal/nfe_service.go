package fiscal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	domain "github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/hugohenrick/erp-veterinaria/pkg/clock"
	"github.com/hugohenrick/erp-veterinaria/pkg/logger"
	"github.com/hugohenrick/erp-veterinaria/pkg/nfe"
)

const (
	minReasonLength = 15
	maxReasonLength = 255

	persistTimeout = 10 * time.Second
	reclaimBatch   = 100

	// duplicateCode é o cStat de duplicidade de NF-e
	duplicateCode = "539"
)

// Options controla os limites do ciclo de vida
type Options struct {
	AuthorityTimeout     time.Duration
	MaxAttempts          int
	StaleProcessingAfter time.Duration
	CancellationWindow   time.Duration
}

// DefaultOptions retorna os limites padrão
func DefaultOptions() Options {
	return Options{
		AuthorityTimeout:     30 * time.Second,
		MaxAttempts:          3,
		StaleProcessingAfter: 2 * time.Minute,
		CancellationWindow:   24 * time.Hour,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AuthorityTimeout <= 0 {
		o.AuthorityTimeout = d.AuthorityTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.StaleProcessingAfter <= 0 {
		o.StaleProcessingAfter = d.StaleProcessingAfter
	}
	if o.CancellationWindow <= 0 {
		o.CancellationWindow = d.CancellationWindow
	}
	return o
}

// Dependencies agrupa os colaboradores do NFeService
type Dependencies struct {
	Configs   domain.ConfigRepository
	Documents domain.DocumentRepository
	Invoices  domain.InvoiceStore
	Authority domain.AuthorityResolver
	Builder   *XMLBuilder
	Validator domain.SchemaValidator // opcional
	Archive   domain.Archive         // opcional
	Clock     clock.Clock
	Random    io.Reader // fonte do cNF; nil usa crypto/rand
	Logger    logger.Logger
}

// NFeService conduz o ciclo de vida da NFe: geração, transmissão, cancelamento e consulta
type NFeService struct {
	configs   domain.ConfigRepository
	documents domain.DocumentRepository
	invoices  domain.InvoiceStore
	authority domain.AuthorityResolver
	builder   *XMLBuilder
	validator domain.SchemaValidator
	archive   domain.Archive
	clock     clock.Clock
	random    io.Reader
	logger    logger.Logger
	opts      Options

	// documentos com chamada à SEFAZ em andamento neste processo
	inFlight sync.Map
}

// NewNFeService cria o serviço de emissão de NFe
func NewNFeService(deps Dependencies, opts Options) *NFeService {
	if deps.Builder == nil {
		deps.Builder = NewXMLBuilder()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	return &NFeService{
		configs:   deps.Configs,
		documents: deps.Documents,
		invoices:  deps.Invoices,
		authority: deps.Authority,
		builder:   deps.Builder,
		validator: deps.Validator,
		archive:   deps.Archive,
		clock:     deps.Clock,
		random:    deps.Random,
		logger:    deps.Logger,
		opts:      opts.withDefaults(),
	}
}

// Generate cria o documento pending de uma fatura, consumindo um número da sequência
func (s *NFeService) Generate(ctx context.Context, tenantID, invoiceID string) (*domain.Document, error) {
	log := s.logger.With("tenant_id", tenantID, "invoice_id", invoiceID)

	cfg, err := s.configs.FindByTenant(ctx, tenantID)
	if errors.Is(err, domain.ErrConfigNotFound) {
		return nil, fmt.Errorf("%w: tenant sem configuração fiscal", domain.ErrConfigIncomplete)
	}
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar configuração fiscal: %w", err)
	}
	if missing := cfg.MissingFields(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: campos ausentes: %s", domain.ErrConfigIncomplete, strings.Join(missing, ", "))
	}
	if !cfg.HasCertificate() {
		return nil, domain.ErrCertificateMissing
	}

	now := s.clock.Now()
	if cfg.CertificateExpired(now) {
		return nil, domain.ErrCertificateExpired
	}

	inv, err := s.invoices.GetInvoiceWithItems(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == domain.InvoiceCancelled {
		return nil, fmt.Errorf("%w: fatura %s cancelada", domain.ErrInvalidState, inv.Number)
	}
	if len(inv.Items) == 0 {
		return nil, domain.ErrInvoiceWithoutItems
	}

	if _, err := s.documents.FindAuthorizedByInvoice(ctx, tenantID, invoiceID); err == nil {
		return nil, domain.ErrDuplicateAuthorization
	} else if !errors.Is(err, domain.ErrDocumentNotFound) {
		return nil, fmt.Errorf("falha ao verificar autorizações da fatura: %w", err)
	}

	sequence, err := s.configs.NextSequence(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("falha ao obter número da NFe: %w", err)
	}

	controlCode, err := nfe.NewControlCode(s.random, sequence)
	if err != nil {
		return nil, err
	}

	issuedAt := now.In(Location)
	accessKey, err := nfe.GenerateAccessKey(nfe.AccessKeyParams{
		State:       cfg.Address.State,
		IssuedAt:    issuedAt,
		CNPJ:        cfg.CNPJ,
		Series:      cfg.Series,
		Number:      sequence,
		ControlCode: controlCode,
	})
	if err != nil {
		return nil, fmt.Errorf("falha ao gerar chave de acesso: %w", err)
	}

	doc := domain.NewDocument(cfg, invoiceID, sequence, accessKey, controlCode, issuedAt)

	body, err := s.builder.Build(inv, cfg, doc)
	if err != nil {
		return nil, err
	}
	if s.validator != nil {
		if err := s.validator.Validate(body); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrSchemaViolation, err)
		}
	}
	doc.XML = string(body)

	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("falha ao gravar documento fiscal: %w", err)
	}
	s.recordEvent(ctx, doc, domain.EventGenerated, "", "", "", "")

	log.Info("NFe gerada",
		"document_id", doc.ID,
		"sequence", sequence,
		"access_key", accessKey,
		"environment", doc.Environment,
	)
	return doc, nil
}

// Transmit envia o documento à SEFAZ e aplica o resultado
func (s *NFeService) Transmit(ctx context.Context, tenantID, documentID string) (*domain.Document, error) {
	doc, err := s.documents.FindByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	from := doc.Status
	reclaimed := false
	switch from {
	case domain.StatusPending, domain.StatusRejected:
	case domain.StatusProcessing:
		if !doc.IsStaleProcessing(now, s.opts.StaleProcessingAfter) || s.isInFlight(doc.ID) {
			return nil, fmt.Errorf("%w: documento já está em processamento", domain.ErrInvalidState)
		}
		reclaimed = true
	default:
		return nil, fmt.Errorf("%w: documento está %s", domain.ErrInvalidState, from)
	}

	if doc.Attempts >= s.opts.MaxAttempts {
		return nil, fmt.Errorf("%w: %d de %d", domain.ErrMaxAttemptsExceeded, doc.Attempts, s.opts.MaxAttempts)
	}
	if err := s.ensureNotAuthorized(ctx, doc); err != nil {
		return nil, err
	}

	if _, busy := s.inFlight.LoadOrStore(doc.ID, struct{}{}); busy {
		return nil, fmt.Errorf("%w: documento já está em processamento", domain.ErrInvalidState)
	}
	defer s.inFlight.Delete(doc.ID)

	doc.StartAttempt(now)
	if err := s.documents.Update(ctx, doc, from); err != nil {
		return nil, err
	}
	if reclaimed {
		s.recordEvent(ctx, doc, domain.EventReclaimed, "", "tentativa anterior sem resposta", "", from)
	}
	s.recordEvent(ctx, doc, domain.EventTransmit, "", "", "", from)

	log := s.logger.With(
		"tenant_id", tenantID,
		"document_id", doc.ID,
		"access_key", doc.AccessKey,
		"attempt", doc.Attempts,
	)

	callCtx, cancel := s.authorityContext(ctx)
	outcome, err := s.authority.For(doc.Environment).Submit(callCtx, domain.SubmitRequest{
		TenantID:    tenantID,
		DocumentID:  doc.ID,
		AccessKey:   doc.AccessKey,
		Environment: doc.Environment,
		XML:         doc.XML,
	})
	cancel()

	// O resultado precisa ser persistido mesmo se o chamador desistiu.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()

	if err != nil {
		unavailable, ok := domain.ClassifyTransportError(err)
		if !ok && !errors.Is(err, context.Canceled) {
			if releaseErr := s.release(persistCtx, doc, err.Error()); releaseErr != nil {
				log.Error("Falha ao liberar documento", "error", releaseErr)
			}
			log.Error("Falha ao transmitir NFe", "error", err)
			return nil, fmt.Errorf("falha ao transmitir NFe: %w", err)
		}
		if !ok {
			unavailable = domain.Unavailable{Cause: err}
		}
		outcome = unavailable
	}

	switch o := outcome.(type) {
	case domain.Accepted:
		return s.authorize(persistCtx, log, doc, o)

	case domain.Rejected:
		doc.Reject(o.Code, o.Message, s.clock.Now())
		if err := s.documents.Update(persistCtx, doc, domain.StatusProcessing); err != nil {
			return nil, fmt.Errorf("falha ao registrar rejeição: %w", err)
		}
		s.recordEvent(persistCtx, doc, domain.EventRejected, o.Code, o.Message, "", domain.StatusProcessing)
		log.Warn("NFe rejeitada", "code", o.Code, "message", o.Message)
		return nil, &domain.AuthorityError{Code: o.Code, Message: o.Message}

	case domain.Unavailable:
		if err := s.release(persistCtx, doc, causeMessage(o.Cause)); err != nil {
			return nil, fmt.Errorf("falha ao liberar documento: %w", err)
		}
		s.recordEvent(persistCtx, doc, domain.EventUnavailable, "", causeMessage(o.Cause), "", domain.StatusProcessing)
		log.Warn("SEFAZ indisponível", "error", o.Cause)
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthorityUnavailable, o.Cause)

	default:
		return nil, fmt.Errorf("resultado desconhecido da SEFAZ: %T", outcome)
	}
}

func (s *NFeService) authorize(ctx context.Context, log logger.Logger, doc *domain.Document, o domain.Accepted) (*domain.Document, error) {
	at := o.Timestamp
	if at.IsZero() {
		at = s.clock.Now()
	}

	doc.Authorize(o.Protocol, o.Code, o.Message, at)
	if err := s.documents.Update(ctx, doc, domain.StatusProcessing); err != nil {
		log.Error("Autorização recebida mas não persistida", "protocol", o.Protocol, "error", err)
		if errors.Is(err, domain.ErrDuplicateAuthorization) {
			s.rejectDuplicate(ctx, log, doc, o.Protocol)
		}
		return nil, fmt.Errorf("falha ao registrar autorização: %w", err)
	}
	s.recordEvent(ctx, doc, domain.EventAuthorized, o.Code, o.Message, o.Protocol, domain.StatusProcessing)

	if err := s.invoices.SetFiscalStatus(ctx, doc.TenantID, doc.InvoiceID, domain.FiscalAuthorized, doc.Sequence); err != nil {
		log.Error("Falha ao atualizar situação fiscal da fatura", "error", err)
	}

	if s.archive != nil {
		if location, err := s.archive.Put(ctx, doc); err != nil {
			log.Error("Falha ao arquivar XML autorizado", "error", err)
		} else {
			log.Debug("XML autorizado arquivado", "location", location)
		}
	}

	log.Info("NFe autorizada", "protocol", o.Protocol, "code", o.Code, "sequence", doc.Sequence)
	return doc, nil
}

// rejectDuplicate encerra o documento cuja autorização colidiu com outra da mesma fatura,
// preservando o protocolo recebido na trilha de auditoria
func (s *NFeService) rejectDuplicate(ctx context.Context, log logger.Logger, doc *domain.Document, protocol string) {
	message := "fatura já possui NFe autorizada; protocolo recebido " + protocol
	doc.Reject(duplicateCode, message, s.clock.Now())
	doc.Protocol = ""
	doc.AuthorizedAt = nil
	if err := s.documents.Update(ctx, doc, domain.StatusProcessing); err != nil {
		log.Error("Falha ao encerrar documento duplicado", "error", err)
		return
	}
	s.recordEvent(ctx, doc, domain.EventRejected, duplicateCode, message, protocol, domain.StatusProcessing)
}

// ensureNotAuthorized impede que a SEFAZ receba um segundo documento de uma fatura já autorizada
func (s *NFeService) ensureNotAuthorized(ctx context.Context, doc *domain.Document) error {
	authorized, err := s.documents.FindAuthorizedByInvoice(ctx, doc.TenantID, doc.InvoiceID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("falha ao verificar autorizações da fatura: %w", err)
	}
	if authorized.ID != doc.ID {
		return fmt.Errorf("%w: documento %s", domain.ErrDuplicateAuthorization, authorized.ID)
	}
	return nil
}

func (s *NFeService) isInFlight(documentID string) bool {
	_, ok := s.inFlight.Load(documentID)
	return ok
}

func (s *NFeService) release(ctx context.Context, doc *domain.Document, message string) error {
	doc.Release(message, s.clock.Now())
	return s.documents.Update(ctx, doc, domain.StatusProcessing)
}

// Cancel registra o evento de cancelamento de uma NFe autorizada
func (s *NFeService) Cancel(ctx context.Context, tenantID, documentID, reason string) (*domain.Document, error) {
	doc, err := s.documents.FindByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusAuthorized {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidState, domain.ErrNotAuthorized)
	}

	reason = strings.TrimSpace(reason)
	switch n := utf8.RuneCountInString(reason); {
	case n < minReasonLength:
		return nil, domain.ErrReasonTooShort
	case n > maxReasonLength:
		return nil, domain.ErrReasonTooLong
	}

	now := s.clock.Now()
	if doc.AuthorizedAt == nil || now.Sub(*doc.AuthorizedAt) > s.opts.CancellationWindow {
		return nil, domain.ErrCancellationWindowExpired
	}

	log := s.logger.With("tenant_id", tenantID, "document_id", doc.ID, "access_key", doc.AccessKey)
	s.recordEvent(ctx, doc, domain.EventCancel, "", reason, "", domain.StatusAuthorized)

	callCtx, cancel := s.authorityContext(ctx)
	outcome, err := s.authority.For(doc.Environment).Cancel(callCtx, domain.CancelRequest{
		TenantID:    tenantID,
		DocumentID:  doc.ID,
		AccessKey:   doc.AccessKey,
		Protocol:    doc.Protocol,
		Environment: doc.Environment,
		Reason:      reason,
		RequestedAt: now,
	})
	cancel()

	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()

	if err != nil {
		unavailable, ok := domain.ClassifyTransportError(err)
		if !ok && !errors.Is(err, context.Canceled) {
			log.Error("Falha ao enviar cancelamento", "error", err)
			return nil, fmt.Errorf("falha ao cancelar NFe: %w", err)
		}
		if !ok {
			unavailable = domain.Unavailable{Cause: err}
		}
		outcome = unavailable
	}

	switch o := outcome.(type) {
	case domain.Accepted:
		at := o.Timestamp
		if at.IsZero() {
			at = s.clock.Now()
		}
		doc.Cancel(reason, o.Protocol, at)
		if err := s.documents.Update(persistCtx, doc, domain.StatusAuthorized); err != nil {
			log.Error("Cancelamento homologado mas não persistido", "protocol", o.Protocol, "error", err)
			return nil, fmt.Errorf("falha ao registrar cancelamento: %w", err)
		}
		s.recordEvent(persistCtx, doc, domain.EventCancelled, o.Code, o.Message, o.Protocol, domain.StatusAuthorized)

		if err := s.invoices.SetFiscalStatus(persistCtx, tenantID, doc.InvoiceID, domain.FiscalCancelled, doc.Sequence); err != nil {
			log.Error("Falha ao atualizar situação fiscal da fatura", "error", err)
		}

		log.Info("NFe cancelada", "protocol", o.Protocol, "code", o.Code)
		return doc, nil

	case domain.Rejected:
		s.recordEvent(persistCtx, doc, domain.EventRejected, o.Code, o.Message, "", domain.StatusAuthorized)
		log.Warn("Cancelamento rejeitado", "code", o.Code, "message", o.Message)
		return nil, &domain.AuthorityError{Code: o.Code, Message: o.Message}

	case domain.Unavailable:
		s.recordEvent(persistCtx, doc, domain.EventUnavailable, "", causeMessage(o.Cause), "", domain.StatusAuthorized)
		log.Warn("SEFAZ indisponível no cancelamento", "error", o.Cause)
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthorityUnavailable, o.Cause)

	default:
		return nil, fmt.Errorf("resultado desconhecido da SEFAZ: %T", outcome)
	}
}

// Status retorna o documento sem efeitos colaterais
func (s *NFeService) Status(ctx context.Context, tenantID, documentID string) (*domain.Document, error) {
	return s.documents.FindByID(ctx, tenantID, documentID)
}

// XML retorna o XML gerado do documento
func (s *NFeService) XML(ctx context.Context, tenantID, documentID string) (string, error) {
	doc, err := s.documents.FindByID(ctx, tenantID, documentID)
	if err != nil {
		return "", err
	}
	return doc.XML, nil
}

// ListByInvoice lista as tentativas de emissão de uma fatura
func (s *NFeService) ListByInvoice(ctx context.Context, tenantID, invoiceID string) ([]*domain.Document, error) {
	return s.documents.FindByInvoice(ctx, tenantID, invoiceID)
}

// Events lista a trilha de auditoria do documento
func (s *NFeService) Events(ctx context.Context, tenantID, documentID string) ([]*domain.DocumentEvent, error) {
	if _, err := s.documents.FindByID(ctx, tenantID, documentID); err != nil {
		return nil, err
	}
	return s.documents.ListEvents(ctx, tenantID, documentID)
}

// ReclaimStale devolve para pending os documentos presos em processing
func (s *NFeService) ReclaimStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	docs, err := s.documents.ListStaleProcessing(ctx, now.Add(-s.opts.StaleProcessingAfter), reclaimBatch)
	if err != nil {
		return 0, fmt.Errorf("falha ao listar documentos em processamento: %w", err)
	}

	reclaimed := 0
	for _, doc := range docs {
		if s.isInFlight(doc.ID) {
			continue
		}
		doc.Release("tentativa expirada sem resposta da SEFAZ", now)
		if err := s.documents.Update(ctx, doc, domain.StatusProcessing); err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				continue
			}
			return reclaimed, err
		}
		s.recordEvent(ctx, doc, domain.EventReclaimed, "", doc.ResponseMessage, "", domain.StatusProcessing)
		s.logger.Warn("Documento em processamento recuperado", "tenant_id", doc.TenantID, "document_id", doc.ID)
		reclaimed++
	}
	return reclaimed, nil
}

// authorityContext limita a chamada à SEFAZ ao timeout padrão (sem prazo do chamador)
// e, sempre, a três quartos de StaleProcessingAfter
func (s *NFeService) authorityContext(ctx context.Context) (context.Context, context.CancelFunc) {
	limit := s.callLimit()
	if _, ok := ctx.Deadline(); !ok && s.opts.AuthorityTimeout < limit {
		limit = s.opts.AuthorityTimeout
	}
	return context.WithTimeout(ctx, limit)
}

func (s *NFeService) callLimit() time.Duration {
	return s.opts.StaleProcessingAfter - s.opts.StaleProcessingAfter/4
}

func (s *NFeService) recordEvent(ctx context.Context, doc *domain.Document, kind domain.EventKind, code, message, protocol string, from domain.DocumentStatus) {
	event := domain.NewDocumentEvent(doc, kind, from, s.clock.Now())
	event.Code = code
	event.Message = message
	event.Protocol = protocol

	if err := s.documents.AppendEvent(ctx, event); err != nil {
		s.logger.Error("Falha ao registrar evento do documento", "document_id", doc.ID, "kind", kind, "error", err)
	}
}

func causeMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
