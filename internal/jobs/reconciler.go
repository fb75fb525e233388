package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/forgo/canvas/internal/service"
)

// Reconciler periodically completes purchases whose ledger outcome was not
// recorded when they ran
type Reconciler struct {
	reconcileService *service.ReconcileService
	interval         time.Duration
	startDelay       time.Duration
	stopCh           chan struct{}
	wg               sync.WaitGroup
	running          bool
	mu               sync.Mutex
}

// NewReconciler creates a new reconciler job
func NewReconciler(reconcileService *service.ReconcileService, interval time.Duration) *Reconciler {
	if interval == 0 {
		interval = 1 * time.Minute
	}
	return &Reconciler{
		reconcileService: reconcileService,
		interval:         interval,
		startDelay:       5 * time.Second,
		stopCh:           make(chan struct{}),
	}
}

// Start begins the reconciler job
func (r *Reconciler) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()
	slog.Info("reconciler started", slog.Duration("interval", r.interval))
}

// Stop gracefully stops the reconciler job
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
	slog.Info("reconciler stopped")
}

// run is the main loop
func (r *Reconciler) run() {
	defer r.wg.Done()

	// first pass after a short delay so startup settles
	select {
	case <-time.After(r.startDelay):
		r.reconcile()
	case <-r.stopCh:
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reconciler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := r.reconcileService.Run(ctx); err != nil {
		slog.Error("reconciliation failed", slog.String("error", err.Error()))
	}
}

// RunOnce runs a single pass (for testing or manual trigger)
func (r *Reconciler) RunOnce(ctx context.Context) (*service.ReconcileReport, error) {
	return r.reconcileService.Run(ctx)
}

// IsRunning returns whether the reconciler is running
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
