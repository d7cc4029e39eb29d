// Package mirror copies the persisted ledger state off-host. Mirroring is
// best effort: it runs in its own goroutine, failures are logged and never
// reach the user or undo a committed local write.
package mirror

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"FamilyBudget/internal/model"

	"github.com/rs/zerolog"
)

// Backend uploads one encoded state snapshot.
type Backend interface {
	Name() string
	Upload(ctx context.Context, data []byte) error
	Close() error
}

// Discard drops every snapshot. Used when no backend is configured.
type Discard struct{}

func (Discard) Submit(*model.State) {}

// Dispatcher decouples the ledger from the backend. Only the newest pending
// snapshot is kept: a burst of writes during a slow upload results in one
// follow-up upload, not a queue.
type Dispatcher struct {
	backend Backend
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	pending *model.State
	wake    chan struct{}
}

// NewDispatcher creates a dispatcher; call Run to start uploading.
func NewDispatcher(backend Backend, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		backend: backend,
		timeout: timeout,
		log:     log.With().Str("backend", backend.Name()).Logger(),
		wake:    make(chan struct{}, 1),
	}
}

// Submit schedules st for mirroring. It never blocks.
func (d *Dispatcher) Submit(st *model.State) {
	d.mu.Lock()
	d.pending = st
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run uploads submitted snapshots until ctx is cancelled, then flushes the
// last pending one.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().Msg("backup mirror started")
	for {
		select {
		case <-ctx.Done():
			d.flush(context.Background())
			d.log.Info().Msg("backup mirror stopped")
			return nil
		case <-d.wake:
			d.flush(ctx)
		}
	}
}

func (d *Dispatcher) flush(ctx context.Context) {
	d.mu.Lock()
	st := d.pending
	d.pending = nil
	d.mu.Unlock()
	if st == nil {
		return
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		d.log.Error().Err(err).Msg("backup mirror failed: encode state")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.backend.Upload(ctx, data); err != nil {
		d.log.Error().Err(err).Str("period", st.Period.String()).Msg("backup mirror failed")
		return
	}
	d.log.Debug().Int("bytes", len(data)).Str("period", st.Period.String()).Msg("state mirrored")
}
