// Package xsd valida o XML da NFe contra o esquema oficial usando libxml2.
package xsd

import (
	"errors"
	"fmt"
	"os"
	"sync"

	xsdvalidate "github.com/terminalstatic/go-xsd-validate"
)

var initOnce sync.Once

// Validator implementa fiscal.SchemaValidator com um esquema carregado uma única vez
type Validator struct {
	handler *xsdvalidate.XsdHandler
	path    string
}

// NewValidator carrega o XSD informado (ex: nfe_v4.00.xsd)
func NewValidator(schemaPath string) (*Validator, error) {
	if _, err := os.Stat(schemaPath); err != nil {
		return nil, fmt.Errorf("arquivo XSD não encontrado em '%s': %w", schemaPath, err)
	}

	var initErr error
	initOnce.Do(func() {
		initErr = xsdvalidate.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("erro ao inicializar libxml2: %w", initErr)
	}

	handler, err := xsdvalidate.NewXsdHandlerUrl(schemaPath, xsdvalidate.ParsErrDefault)
	if err != nil {
		return nil, fmt.Errorf("erro ao carregar XSD '%s': %w", schemaPath, err)
	}

	return &Validator{handler: handler, path: schemaPath}, nil
}

// Validate valida o documento em memória e devolve o primeiro erro com a linha
func (v *Validator) Validate(xml []byte) error {
	err := v.handler.ValidateMem(xml, xsdvalidate.ValidErrDefault)
	if err == nil {
		return nil
	}

	var verr xsdvalidate.ValidationError
	if errors.As(err, &verr) && len(verr.Errors) > 0 {
		first := verr.Errors[0]
		return fmt.Errorf("falha na validação XSD (linha %d): %s", first.Line, first.Message)
	}
	return fmt.Errorf("erro de validação XSD: %w", err)
}

// Close libera o esquema carregado
func (v *Validator) Close() {
	v.handler.Free()
}
