package tenant

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/api/dto"
)

// HeaderName é o cabeçalho que identifica o tenant quando não há token
const HeaderName = "tenant-id"

const maxTenantIDLength = 64

// TenantMiddleware resolve o tenant da requisição.
// O tenant vindo do token (já gravado no contexto) tem precedência; o cabeçalho,
// se presente, precisa coincidir com ele.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader(HeaderName))
		fromToken := c.GetString(GinKey)

		tenantID, err := Resolve(fromToken, header)
		if err != nil {
			status := http.StatusBadRequest
			if err == ErrTenantMismatch {
				status = http.StatusForbidden
			}
			c.AbortWithStatusJSON(status, dto.NewErrorResponse(status, "Tenant inválido", err.Error()))
			return
		}

		c.Set(GinKey, tenantID)
		c.Request = c.Request.WithContext(SetTenantIDContext(c.Request.Context(), tenantID))

		c.Next()
	}
}

// Resolve escolhe o tenant entre o token e o cabeçalho
func Resolve(fromToken, header string) (string, error) {
	switch {
	case fromToken != "" && header != "" && fromToken != header:
		return "", ErrTenantMismatch
	case fromToken != "":
		return fromToken, nil
	case header == "":
		return "", ErrTenantNotSpecified
	}

	if !validTenantID(header) {
		return "", ErrTenantInvalid
	}
	return header, nil
}

func validTenantID(id string) bool {
	if len(id) > maxTenantIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
