package tenant

import "errors"

// Erros relacionados à identificação do tenant
var (
	// ErrTenantNotSpecified ocorre quando um ID de tenant não é fornecido
	ErrTenantNotSpecified = errors.New("tenant ID não especificado")

	// ErrTenantInvalid ocorre quando o ID informado não tem formato aceito
	ErrTenantInvalid = errors.New("tenant ID inválido")

	// ErrTenantMismatch ocorre quando o cabeçalho diverge do tenant do token
	ErrTenantMismatch = errors.New("tenant do cabeçalho difere do tenant do token")
)
