package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"

	"github.com/folioreads/folio/pkg/errcodes"
	"github.com/folioreads/folio/pkg/library"
)

const pollInterval = 5 * time.Second

// Worker drains the stale-backup queue in the background, writing the
// per-record metadata sidecar for every record dirtied since its last
// backup. One worker per open library.
type Worker struct {
	lib *library.Library
	log logger.Logger

	interval time.Duration
	started  bool
	shutdown chan struct{}
	done     chan struct{}
}

func New(lib *library.Library) *Worker {
	return &Worker{
		lib:      lib,
		log:      logger.New(),
		interval: pollInterval,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *Worker) Start() {
	w.started = true
	go w.run()
}

func (w *Worker) run() {
	timer := time.NewTimer(w.interval)

	for {
		select {
		case <-w.shutdown:
			timer.Stop()
			w.done <- struct{}{}
			return
		case <-timer.C:
			id, err := uuid.NewRandom()
			if err != nil {
				w.log.Err(err).Error("new uuid error")
				timer.Reset(w.interval)
				continue
			}
			log := w.log.ID(id.String())
			ctx := log.WithContext(context.Background())

			if err := w.RunOnce(ctx); err != nil {
				log.Err(err).Error("backup pass error")
			}
			timer.Reset(w.interval)
		}
	}
}

// RunOnce drains the queue synchronously. Records deleted since they were
// dirtied are dropped from the queue without error; any other failure is
// logged and the record stays queued for the next pass.
func (w *Worker) RunOnce(ctx context.Context) error {
	log := logger.FromContext(ctx)

	ids, err := w.lib.DirtiedRecords(ctx)
	if err != nil {
		return err
	}

	for _, recordID := range ids {
		err := w.lib.WriteMetadataBackup(ctx, recordID)
		if err != nil && errcodes.Code(err) != errcodes.CodeNotFound {
			log.Err(err).Error("metadata backup error", logger.Data{"record_id": recordID})
			continue
		}
		if err := w.lib.ClearDirty(ctx, recordID); err != nil {
			log.Err(err).Error("clear dirty error", logger.Data{"record_id": recordID})
		}
	}
	return nil
}

// Shutdown stops the background loop and waits for it to exit. A worker
// that never started has nothing to wait for.
func (w *Worker) Shutdown() {
	if !w.started {
		return
	}
	close(w.shutdown)
	<-w.done
}
