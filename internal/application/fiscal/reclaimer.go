package fiscal

import (
	"context"
	"time"

	"github.com/hugohenrick/erp-veterinaria/pkg/logger"
)

// Reclaimer executa ReclaimStale periodicamente até o contexto ser cancelado
type Reclaimer struct {
	service  *NFeService
	interval time.Duration
	logger   logger.Logger
}

// NewReclaimer cria o worker de recuperação de documentos presos em processing
func NewReclaimer(service *NFeService, interval time.Duration, log logger.Logger) *Reclaimer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reclaimer{service: service, interval: interval, logger: log}
}

// Run bloqueia até ctx ser cancelado
func (r *Reclaimer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Worker de recuperação iniciado", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Worker de recuperação finalizado")
			return
		case <-ticker.C:
			n, err := r.service.ReclaimStale(ctx)
			if err != nil {
				r.logger.Error("Falha ao recuperar documentos", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Info("Documentos recuperados", "count", n)
			}
		}
	}
}
