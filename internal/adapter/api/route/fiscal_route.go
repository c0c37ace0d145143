package route

import (
	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/api/controller"
)

// SetupFiscalRoutes configura as rotas de configuração fiscal e do ciclo de vida da NFe.
// O grupo recebido já deve ter autenticação e resolução de tenant aplicadas.
func SetupFiscalRoutes(router *gin.RouterGroup, fiscalController *controller.FiscalController, nfeController *controller.NFeController, idempotent gin.HandlerFunc) {
	fiscalRouter := router.Group("/fiscal")
	{
		// Configuração do tenant
		fiscalRouter.GET("/config", fiscalController.Get)
		fiscalRouter.PUT("/config", fiscalController.Update)
		fiscalRouter.POST("/config/certificate", fiscalController.UploadCertificate)

		// Documentos por fatura
		fiscalRouter.POST("/invoices/:invoice_id/nfe", idempotent, nfeController.Generate)
		fiscalRouter.GET("/invoices/:invoice_id/nfe", nfeController.ListByInvoice)

		// Operações sobre o documento
		fiscalRouter.GET("/nfe/:id", nfeController.Status)
		fiscalRouter.GET("/nfe/:id/xml", nfeController.XML)
		fiscalRouter.GET("/nfe/:id/events", nfeController.Events)
		fiscalRouter.POST("/nfe/:id/transmit", nfeController.Transmit)
		fiscalRouter.POST("/nfe/:id/cancel", nfeController.Cancel)
	}
}
