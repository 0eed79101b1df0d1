package storage

import (
	"log/slog"

	cadencelog "github.com/mpataki/cadence/internal/log"
	"github.com/mpataki/cadence/internal/models"
)

// Archiver persists every run that finishes, and saves it again when
// evidence is added afterwards. It satisfies orchestrator.Observer.
type Archiver struct {
	store  *Storage
	logger *slog.Logger
}

func NewArchiver(store *Storage, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = cadencelog.Discard()
	}
	return &Archiver{store: store, logger: cadencelog.WithComponent(logger, "archive")}
}

func (a *Archiver) Observe(ev models.Event) {
	if ev.Snapshot == nil || (ev.Type != models.EventFinished && ev.Type != models.EventAnnotated) {
		return
	}

	if err := a.store.SaveRun(ev.Snapshot); err != nil {
		a.logger.Error("failed to archive run",
			slog.String(cadencelog.RunIDKey, ev.RunID),
			cadencelog.Error(err))
		return
	}
	a.logger.Debug("run archived",
		slog.String(cadencelog.RunIDKey, ev.RunID),
		slog.String(cadencelog.StatusKey, string(ev.Status)))
}
