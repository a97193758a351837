package store

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Pruner periodically removes blobs no longer referenced by any run,
// mirroring the corpus's existing use of robfig/cron for scheduled
// maintenance work.
type Pruner struct {
	store *Postgres
	cron  *cron.Cron
	log   *slog.Logger
}

// NewPruner builds a Pruner that runs store.PruneOrphanBlobs on the
// given cron schedule (standard 5-field syntax, e.g. "0 */6 * * *" for
// every six hours).
func NewPruner(store *Postgres, schedule string, log *slog.Logger) (*Pruner, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &Pruner{store: store, cron: cron.New(), log: log}
	_, err := p.cron.AddFunc(schedule, p.runOnce)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Start begins the background schedule. It does not block.
func (p *Pruner) Start() {
	p.cron.Start()
}

// Stop halts the schedule and waits for any in-flight run to finish.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}

func (p *Pruner) runOnce() {
	n, err := p.store.PruneOrphanBlobs(context.Background())
	if err != nil {
		p.log.Error("blob prune failed", "error", err)
		return
	}
	if n > 0 {
		p.log.Info("pruned orphan blobs", "count", n)
	}
}
