package fiscal

import (
	"errors"
	"fmt"
)

// Erros do ciclo de vida dos documentos fiscais
var (
	// ErrConfigNotFound ocorre quando o tenant ainda não possui configuração fiscal
	ErrConfigNotFound = errors.New("configuração fiscal não encontrada")

	// ErrConfigIncomplete ocorre quando faltam dados obrigatórios do emitente
	ErrConfigIncomplete = errors.New("configuração fiscal incompleta")

	// ErrInvalidConfig ocorre quando um campo da configuração tem valor inválido
	ErrInvalidConfig = errors.New("configuração fiscal inválida")

	// ErrCertificateMissing ocorre quando nenhum certificado digital foi enviado
	ErrCertificateMissing = errors.New("certificado digital não configurado")

	// ErrCertificateExpired ocorre quando o certificado digital está vencido
	ErrCertificateExpired = errors.New("certificado digital vencido")

	// ErrInvalidCertificate ocorre quando o arquivo não é um PKCS#12 válido para a senha
	ErrInvalidCertificate = errors.New("certificado digital inválido")

	// ErrInvoiceNotFound ocorre quando a fatura não existe para o tenant
	ErrInvoiceNotFound = errors.New("fatura não encontrada")

	// ErrInvoiceWithoutItems ocorre quando a fatura não possui itens
	ErrInvoiceWithoutItems = errors.New("fatura não possui itens")

	// ErrSchemaViolation ocorre quando o XML gerado não passa na validação do esquema da NFe
	ErrSchemaViolation = errors.New("XML da NFe não atende ao esquema")

	// ErrDocumentNotFound ocorre quando o documento fiscal não existe para o tenant
	ErrDocumentNotFound = errors.New("documento fiscal não encontrado")

	// ErrDuplicateAuthorization ocorre quando a fatura já possui uma NFe autorizada
	ErrDuplicateAuthorization = errors.New("fatura já possui NFe autorizada")

	// ErrInvalidState ocorre quando a transição não é permitida no estado atual
	ErrInvalidState = errors.New("operação não permitida no estado atual do documento")

	// ErrNotAuthorized ocorre ao cancelar um documento que não está autorizado
	ErrNotAuthorized = errors.New("documento não está autorizado")

	// ErrReasonTooShort ocorre quando a justificativa tem menos de 15 caracteres
	ErrReasonTooShort = errors.New("justificativa deve ter no mínimo 15 caracteres")

	// ErrReasonTooLong ocorre quando a justificativa passa de 255 caracteres
	ErrReasonTooLong = errors.New("justificativa deve ter no máximo 255 caracteres")

	// ErrCancellationWindowExpired ocorre quando o prazo de cancelamento terminou
	ErrCancellationWindowExpired = errors.New("prazo para cancelamento expirado")

	// ErrMaxAttemptsExceeded ocorre quando o documento atingiu o limite de transmissões
	ErrMaxAttemptsExceeded = errors.New("limite de tentativas de transmissão atingido")

	// ErrAuthorityRejected ocorre quando a SEFAZ rejeita o documento ou evento
	ErrAuthorityRejected = errors.New("rejeitado pela autoridade fiscal")

	// ErrAuthorityUnavailable ocorre em falhas de rede ou tempo esgotado (pode ser repetido)
	ErrAuthorityUnavailable = errors.New("autoridade fiscal indisponível")

	// ErrNotImplemented ocorre ao usar a integração de produção ainda inexistente
	ErrNotImplemented = errors.New("integração com a SEFAZ de produção não implementada")
)

// AuthorityError carrega o código e a mensagem devolvidos pela SEFAZ
type AuthorityError struct {
	Code    string
	Message string
}

// Error implementa a interface error
func (e *AuthorityError) Error() string {
	return fmt.Sprintf("%s: [%s] %s", ErrAuthorityRejected.Error(), e.Code, e.Message)
}

// Unwrap permite errors.Is(err, ErrAuthorityRejected)
func (e *AuthorityError) Unwrap() error {
	return ErrAuthorityRejected
}
