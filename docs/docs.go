// Package docs contém a documentação OpenAPI servida em /swagger.
// Regerar com: swag init -g cmd/api/docs.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/fiscal/config": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Configuração Fiscal"],
                "summary": "Obter configuração fiscal",
                "parameters": [{"type": "string", "description": "ID do tenant", "name": "tenant-id", "in": "header"}],
                "responses": {"200": {"description": "OK"}}
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Configuração Fiscal"],
                "summary": "Atualizar configuração fiscal",
                "parameters": [
                    {"type": "string", "description": "ID do tenant", "name": "tenant-id", "in": "header"},
                    {"description": "Campos a alterar", "name": "config", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "422": {"description": "Unprocessable Entity"}}
            }
        },
        "/fiscal/config/certificate": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Configuração Fiscal"],
                "summary": "Enviar certificado digital",
                "parameters": [
                    {"type": "file", "description": "Arquivo .pfx/.p12", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "Senha do certificado", "name": "password", "in": "formData", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "413": {"description": "Request Entity Too Large"}, "422": {"description": "Unprocessable Entity"}}
            }
        },
        "/fiscal/invoices/{invoice_id}/nfe": {
            "get": {
                "produces": ["application/json"],
                "tags": ["NFe"],
                "summary": "Listar NFe da fatura",
                "parameters": [{"type": "string", "name": "invoice_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "produces": ["application/json"],
                "tags": ["NFe"],
                "summary": "Gerar NFe",
                "parameters": [
                    {"type": "string", "name": "invoice_id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {"201": {"description": "Created"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}, "422": {"description": "Unprocessable Entity"}}
            }
        },
        "/fiscal/nfe/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["NFe"],
                "summary": "Consultar NFe",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/fiscal/nfe/{id}/transmit": {
            "post": {
                "produces": ["application/json"],
                "tags": ["NFe"],
                "summary": "Transmitir NFe",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "timeout", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}, "501": {"description": "Not Implemented"}, "502": {"description": "Bad Gateway"}, "503": {"description": "Service Unavailable"}}
            }
        },
        "/fiscal/nfe/{id}/cancel": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["NFe"],
                "summary": "Cancelar NFe",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"type": "object", "properties": {"reason": {"type": "string"}}}}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}, "422": {"description": "Unprocessable Entity"}}
            }
        },
        "/fiscal/nfe/{id}/xml": {
            "get": {
                "produces": ["application/xml"],
                "tags": ["NFe"],
                "summary": "Baixar XML da NFe",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/fiscal/nfe/{id}/events": {
            "get": {
                "produces": ["application/json"],
                "tags": ["NFe"],
                "summary": "Trilha de auditoria da NFe",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        }
    },
    "securityDefinitions": {
        "Bearer": {
            "description": "Cabeçalho de autenticação JWT usando o esquema Bearer. Exemplo: \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "ERP Veterinária - API Fiscal",
	Description:      "Emissão de NFe para clínicas veterinárias: configuração do emitente, geração, transmissão, cancelamento e consulta",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
