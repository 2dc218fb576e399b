package ports

import (
	"context"

	"github.com/alejandrodnm/runwatch/internal/domain"
)

// Notifier presenta el estado reconciliado al usuario.
type Notifier interface {
	// NotifyRun muestra el snapshot actual de un run (steps incluidos).
	// En la implementación de consola, imprime una tabla formateada.
	NotifyRun(ctx context.Context, run domain.Run) error

	// NotifyFill muestra el resultado de una sesión de fill-watch. Como
	// máximo un banner terminal por sesión; un late-confirm es una línea
	// informativa adicional, nunca reemplaza el banner de timeout.
	NotifyFill(ctx context.Context, outcome domain.FillOutcome) error
}
