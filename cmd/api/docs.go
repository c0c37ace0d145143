package main

// @title           ERP Veterinária - API Fiscal
// @version         1.0
// @description     Emissão de NFe para clínicas veterinárias: configuração do emitente, geração, transmissão, cancelamento e consulta

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Cabeçalho de autenticação JWT usando o esquema Bearer. Exemplo: "Bearer {token}"
