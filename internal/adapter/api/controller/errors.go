package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/api/dto"
	"github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/hugohenrick/erp-veterinaria/pkg/logger"
)

// errorStatus associa os erros de domínio aos códigos HTTP
func errorStatus(err error) (int, string) {
	var authErr *fiscal.AuthorityError

	switch {
	case errors.Is(err, fiscal.ErrConfigNotFound),
		errors.Is(err, fiscal.ErrInvoiceNotFound),
		errors.Is(err, fiscal.ErrDocumentNotFound):
		return http.StatusNotFound, "recurso não encontrado"

	case errors.Is(err, fiscal.ErrDuplicateAuthorization),
		errors.Is(err, fiscal.ErrInvalidState),
		errors.Is(err, fiscal.ErrMaxAttemptsExceeded):
		return http.StatusConflict, "operação conflita com o estado atual"

	case errors.Is(err, fiscal.ErrConfigIncomplete),
		errors.Is(err, fiscal.ErrInvalidConfig),
		errors.Is(err, fiscal.ErrCertificateMissing),
		errors.Is(err, fiscal.ErrCertificateExpired),
		errors.Is(err, fiscal.ErrInvalidCertificate),
		errors.Is(err, fiscal.ErrInvoiceWithoutItems),
		errors.Is(err, fiscal.ErrSchemaViolation),
		errors.Is(err, fiscal.ErrReasonTooShort),
		errors.Is(err, fiscal.ErrReasonTooLong),
		errors.Is(err, fiscal.ErrCancellationWindowExpired):
		return http.StatusUnprocessableEntity, "dados insuficientes ou inválidos para a operação"

	case errors.As(err, &authErr), errors.Is(err, fiscal.ErrAuthorityRejected):
		return http.StatusBadGateway, "rejeitado pela SEFAZ"

	case errors.Is(err, fiscal.ErrAuthorityUnavailable):
		return http.StatusServiceUnavailable, "SEFAZ indisponível, tente novamente"

	case errors.Is(err, fiscal.ErrNotImplemented):
		return http.StatusNotImplemented, "operação não disponível neste ambiente"

	default:
		return http.StatusInternalServerError, "erro interno"
	}
}

// respondError escreve o erro no envelope padrão; erros 5xx inesperados são logados
func respondError(ctx *gin.Context, log logger.Logger, err error) {
	status, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Error("Erro inesperado", "path", ctx.FullPath(), "error", err)
	}
	ctx.JSON(status, dto.NewErrorResponse(status, message, err.Error()))
}
