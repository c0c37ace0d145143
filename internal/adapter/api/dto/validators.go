package dto

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/hugohenrick/erp-veterinaria/pkg/nfe"
)

// RegisterValidators registra as tags cnpj e uf no validador do gin
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("validador do gin não é go-playground/validator")
	}

	// Erros usam o nome do campo JSON
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("cnpj", func(fl validator.FieldLevel) bool {
		return nfe.ValidCNPJ(nfe.OnlyDigits(fl.Field().String()))
	}); err != nil {
		return err
	}

	return v.RegisterValidation("uf", func(fl validator.FieldLevel) bool {
		return nfe.IsValidState(fl.Field().String())
	})
}

// ValidationMessage monta uma mensagem legível para erros de binding
func ValidationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s é obrigatório", e.Field()))
		case "cnpj":
			msgs = append(msgs, fmt.Sprintf("%s não é um CNPJ válido", e.Field()))
		case "uf":
			msgs = append(msgs, fmt.Sprintf("%s não é uma UF válida", e.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s deve ser um de: %s", e.Field(), e.Param()))
		case "min", "max", "len":
			msgs = append(msgs, fmt.Sprintf("%s fora do limite (%s=%s)", e.Field(), e.Tag(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s inválido (%s)", e.Field(), e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
