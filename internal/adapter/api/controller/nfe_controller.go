package controller

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/api/dto"
	"github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/hugohenrick/erp-veterinaria/pkg/logger"
	"github.com/hugohenrick/erp-veterinaria/pkg/tenant"
)

const defaultMaxTransmitTimeout = 2 * time.Minute

// NFeService define os casos de uso do ciclo de vida da NFe usados pelo controller
type NFeService interface {
	Generate(ctx context.Context, tenantID, invoiceID string) (*fiscal.Document, error)
	Transmit(ctx context.Context, tenantID, documentID string) (*fiscal.Document, error)
	Cancel(ctx context.Context, tenantID, documentID, reason string) (*fiscal.Document, error)
	Status(ctx context.Context, tenantID, documentID string) (*fiscal.Document, error)
	XML(ctx context.Context, tenantID, documentID string) (string, error)
	ListByInvoice(ctx context.Context, tenantID, invoiceID string) ([]*fiscal.Document, error)
	Events(ctx context.Context, tenantID, documentID string) ([]*fiscal.DocumentEvent, error)
}

// NFeController manipula as requisições de emissão e consulta de NFe
type NFeController struct {
	service            NFeService
	logger             logger.Logger
	maxTransmitTimeout time.Duration
}

// NewNFeController cria uma nova instância de NFeController.
// maxTransmitTimeout limita o parâmetro ?timeout= da transmissão; zero usa 2 minutos.
func NewNFeController(service NFeService, logger logger.Logger, maxTransmitTimeout time.Duration) *NFeController {
	if maxTransmitTimeout <= 0 {
		maxTransmitTimeout = defaultMaxTransmitTimeout
	}
	return &NFeController{
		service:            service,
		logger:             logger,
		maxTransmitTimeout: maxTransmitTimeout,
	}
}

// @Summary Gerar NFe
// @Description Gera o documento fiscal (pending) de uma fatura, reservando o próximo número
// @Tags NFe
// @Produce json
// @Param Authorization header string false "Bearer token"
// @Param tenant-id header string false "ID do tenant"
// @Param Idempotency-Key header string false "Chave para repetir a requisição sem gerar outro número"
// @Param invoice_id path string true "ID da fatura"
// @Success 201 {object} dto.SuccessResponse{data=dto.NFeResponse}
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /fiscal/invoices/{invoice_id}/nfe [post]
func (c *NFeController) Generate(ctx *gin.Context) {
	doc, err := c.service.Generate(ctx.Request.Context(), tenant.GetTenantID(ctx), ctx.Param("invoice_id"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusCreated, dto.NewSuccessResponse("NFe gerada", dto.NewNFeResponse(doc)))
}

// @Summary Listar NFe da fatura
// @Description Lista as tentativas de emissão de uma fatura, da mais recente para a mais antiga
// @Tags NFe
// @Produce json
// @Param Authorization header string false "Bearer token"
// @Param tenant-id header string false "ID do tenant"
// @Param invoice_id path string true "ID da fatura"
// @Success 200 {object} dto.SuccessResponse{data=[]dto.NFeResponse}
// @Router /fiscal/invoices/{invoice_id}/nfe [get]
func (c *NFeController) ListByInvoice(ctx *gin.Context) {
	docs, err := c.service.ListByInvoice(ctx.Request.Context(), tenant.GetTenantID(ctx), ctx.Param("invoice_id"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse("documentos fiscais", dto.NewNFeListResponse(docs)))
}

// @Summary Transmitir NFe
// @Description Envia o documento à SEFAZ. Rejeição devolve 502 e indisponibilidade 503 (o documento volta para pending)
// @Tags NFe
// @Produce json
// @Param Authorization header string false "Bearer token"
// @Param tenant-id header string false "ID do tenant"
// @Param id path string true "ID do documento"
// @Param timeout query string false "Tempo máximo de espera pela SEFAZ (ex: 30s)"
// @Success 200 {object} dto.SuccessResponse{data=dto.NFeResponse}
// @Failure 409 {object} dto.ErrorResponse
// @Failure 501 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /fiscal/nfe/{id}/transmit [post]
func (c *NFeController) Transmit(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()

	if raw := ctx.Query("timeout"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 || timeout > c.maxTransmitTimeout {
			ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "timeout inválido",
				fmt.Sprintf("use uma duração entre 1s e %s", c.maxTransmitTimeout)))
			return
		}
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, timeout)
		defer cancel()
	}

	doc, err := c.service.Transmit(reqCtx, tenant.GetTenantID(ctx), ctx.Param("id"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse("NFe autorizada", dto.NewNFeResponse(doc)))
}

// @Summary Cancelar NFe
// @Description Registra o evento de cancelamento de uma NFe autorizada
// @Tags NFe
// @Accept json
// @Produce json
// @Param Authorization header string false "Bearer token"
// @Param tenant-id header string false "ID do tenant"
// @Param id path string true "ID do documento"
// @Param request body dto.CancelNFeRequest true "Justificativa (15 a 255 caracteres)"
// @Success 200 {object} dto.SuccessResponse{data=dto.NFeResponse}
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /fiscal/nfe/{id}/cancel [post]
func (c *NFeController) Cancel(ctx *gin.Context) {
	var req dto.CancelNFeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "dados inválidos", dto.ValidationMessage(err)))
		return
	}

	doc, err := c.service.Cancel(ctx.Request.Context(), tenant.GetTenantID(ctx), ctx.Param("id"), req.Reason)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse("NFe cancelada", dto.NewNFeResponse(doc)))
}

// @Summary Consultar NFe
// @Description Retorna o estado atual do documento sem consultar a SEFAZ
// @Tags NFe
// @Produce json
// @Param Authorization header string false "Bearer token"
// @Param tenant-id header string false "ID do tenant"
// @Param id path string true "ID do documento"
// @Success 200 {object} dto.SuccessResponse{data=dto.NFeResponse}
// @Failure 404 {object} dto.ErrorResponse
// @Router /fiscal/nfe/{id} [get]
func (c *NFeController) Status(ctx *gin.Context) {
	doc, err := c.service.Status(ctx.Request.Context(), tenant.GetTenantID(ctx), ctx.Param("id"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse("documento fiscal", dto.NewNFeResponse(doc)))
}

// @Summary Baixar XML da NFe
// @Tags NFe
// @Produce xml
// @Param Authorization header string false "Bearer token"
// @Param tenant-id header string false "ID do tenant"
// @Param id path string true "ID do documento"
// @Success 200 {string} string "XML da NFe"
// @Failure 404 {object} dto.ErrorResponse
// @Router /fiscal/nfe/{id}/xml [get]
func (c *NFeController) XML(ctx *gin.Context) {
	body, err := c.service.XML(ctx.Request.Context(), tenant.GetTenantID(ctx), ctx.Param("id"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(body))
}

// @Summary Trilha de auditoria da NFe
// @Tags NFe
// @Produce json
// @Param Authorization header string false "Bearer token"
// @Param tenant-id header string false "ID do tenant"
// @Param id path string true "ID do documento"
// @Success 200 {object} dto.SuccessResponse{data=[]dto.NFeEventResponse}
// @Failure 404 {object} dto.ErrorResponse
// @Router /fiscal/nfe/{id}/events [get]
func (c *NFeController) Events(ctx *gin.Context) {
	events, err := c.service.Events(ctx.Request.Context(), tenant.GetTenantID(ctx), ctx.Param("id"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse("eventos do documento", dto.NewNFeEventListResponse(events)))
}
