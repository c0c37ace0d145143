package controller

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/api/dto"
	"github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/hugohenrick/erp-veterinaria/pkg/logger"
	"github.com/hugohenrick/erp-veterinaria/pkg/tenant"
)

const defaultMaxCertificateSize = 1 << 20

// ConfigService define os casos de uso de configuração fiscal usados pelo controller
type ConfigService interface {
	GetOrCreate(ctx context.Context, tenantID string) (*fiscal.Config, error)
	Update(ctx context.Context, tenantID string, patch fiscal.ConfigPatch) (*fiscal.Config, error)
	AttachCertificate(ctx context.Context, tenantID string, data []byte, password string) (*fiscal.CertificateInfo, error)
}

// FiscalController manipula as requisições relacionadas à configuração fiscal do tenant
type FiscalController struct {
	service        ConfigService
	logger         logger.Logger
	maxUploadBytes int64
}

// NewFiscalController cria uma nova instância de FiscalController
func NewFiscalController(service ConfigService, logger logger.Logger, maxUploadBytes int64) *FiscalController {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxCertificateSize
	}
	return &FiscalController{
		service:        service,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// @Summary Obter configuração fiscal
// @Description Retorna a configuração fiscal do tenant, criando a padrão (homologação) no primeiro acesso
// @Tags Configuração Fiscal
// @Produce json
// @Param Authorization header string false "Bearer token"
// @Param tenant-id header string false "ID do tenant"
// @Success 200 {object} dto.SuccessResponse{data=dto.FiscalConfigResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /fiscal/config [get]
func (c *FiscalController) Get(ctx *gin.Context) {
	tenantID := tenant.GetTenantID(ctx)

	config, err := c.service.GetOrCreate(ctx.Request.Context(), tenantID)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse("configuração fiscal", dto.NewFiscalConfigResponse(config)))
}

// @Summary Atualizar configuração fiscal
// @Description Atualiza parcialmente a configuração fiscal; campos omitidos permanecem inalterados
// @Tags Configuração Fiscal
// @Accept json
// @Produce json
// @Param Authorization header string false "Bearer token"
// @Param tenant-id header string false "ID do tenant"
// @Param config body dto.FiscalConfigRequest true "Campos a alterar"
// @Success 200 {object} dto.SuccessResponse{data=dto.FiscalConfigResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /fiscal/config [put]
func (c *FiscalController) Update(ctx *gin.Context) {
	var req dto.FiscalConfigRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "dados inválidos", dto.ValidationMessage(err)))
		return
	}

	tenantID := tenant.GetTenantID(ctx)
	config, err := c.service.Update(ctx.Request.Context(), tenantID, req.ToPatch())
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse("configuração fiscal atualizada", dto.NewFiscalConfigResponse(config)))
}

// @Summary Enviar certificado digital
// @Description Recebe o arquivo PKCS#12 (A1) e a senha; a senha é armazenada cifrada
// @Tags Configuração Fiscal
// @Accept multipart/form-data
// @Produce json
// @Param Authorization header string false "Bearer token"
// @Param tenant-id header string false "ID do tenant"
// @Param file formData file true "Arquivo .pfx/.p12"
// @Param password formData string true "Senha do certificado"
// @Success 200 {object} dto.SuccessResponse{data=dto.CertificateResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 413 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /fiscal/config/certificate [post]
func (c *FiscalController) UploadCertificate(ctx *gin.Context) {
	password := ctx.PostForm("password")
	if password == "" {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "dados inválidos", "password é obrigatório"))
		return
	}

	header, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "arquivo não enviado", err.Error()))
		return
	}
	if header.Size > c.maxUploadBytes {
		ctx.JSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(http.StatusRequestEntityTooLarge,
			"arquivo muito grande", fmt.Sprintf("limite de %d bytes", c.maxUploadBytes)))
		return
	}

	file, err := header.Open()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "falha ao abrir arquivo", err.Error()))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, c.maxUploadBytes))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "falha ao ler arquivo", err.Error()))
		return
	}

	tenantID := tenant.GetTenantID(ctx)
	info, err := c.service.AttachCertificate(ctx.Request.Context(), tenantID, data, password)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse("certificado digital configurado", dto.NewCertificateResponse(info)))
}
