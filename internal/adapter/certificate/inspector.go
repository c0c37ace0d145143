// Package certificate valida certificados digitais A1 (PKCS#12) enviados pelos tenants.
package certificate

import (
	"fmt"

	"github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/hugohenrick/erp-veterinaria/pkg/pkcs12"
)

// Inspector implementa fiscal.CertificateInspector com go-pkcs12
type Inspector struct{}

// NewInspector cria um novo inspetor de certificados
func NewInspector() *Inspector {
	return &Inspector{}
}

// Inspect decodifica o arquivo e retorna o titular e a validade do certificado
func (i *Inspector) Inspect(data []byte, password string) (*fiscal.CertificateInfo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: arquivo vazio", fiscal.ErrInvalidCertificate)
	}

	bundle, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fiscal.ErrInvalidCertificate, err)
	}
	if bundle.PrivateKey == nil {
		return nil, fmt.Errorf("%w: chave privada ausente", fiscal.ErrInvalidCertificate)
	}

	cert := bundle.Certificate
	return &fiscal.CertificateInfo{
		Subject:   cert.Subject.CommonName,
		Issuer:    cert.Issuer.CommonName,
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
	}, nil
}
