package pkcs12

import (
	"crypto/x509"
	"errors"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"
)

// ErrNoCertificate ocorre quando o arquivo não contém certificado folha
var ErrNoCertificate = errors.New("arquivo PKCS12 sem certificado")

// Bundle contém o conteúdo decodificado de um arquivo .pfx/.p12
type Bundle struct {
	PrivateKey  interface{}
	Certificate *x509.Certificate
	CACerts     []*x509.Certificate
}

// Decode abre o arquivo PKCS12 com a senha informada
func Decode(pfxData []byte, password string) (*Bundle, error) {
	privateKey, certificate, caCerts, err := pkcs12.DecodeChain(pfxData, password)
	if err != nil {
		return nil, fmt.Errorf("falha ao decodificar PKCS12: %w", err)
	}
	if certificate == nil {
		return nil, ErrNoCertificate
	}
	return &Bundle{PrivateKey: privateKey, Certificate: certificate, CACerts: caCerts}, nil
}
