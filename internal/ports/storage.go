package ports

import (
	"context"

	"github.com/alejandrodnm/runwatch/internal/domain"
)

// RunStorage persiste resultados terminales para inspección posterior.
// El estado vivo del engine es solo memoria; storage es historial, nunca
// fuente de merge.
type RunStorage interface {
	SaveRunOutcome(ctx context.Context, outcome domain.RunOutcome) error
	GetRunOutcomes(ctx context.Context, limit int) ([]domain.RunOutcome, error)

	SaveFillOutcome(ctx context.Context, outcome domain.FillOutcome) error
	GetFillOutcomes(ctx context.Context, limit int) ([]domain.FillOutcome, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
