// Package jobs implements background job processing for the Canvas API.
//
// The jobs package contains scheduled tasks that run independently of HTTP
// request handling.
//
// # Job Types
//
//   - Reconciler: completes or fails purchases whose ledger outcome was not
//     recorded when they ran
//
// # Lifecycle
//
// Jobs expose Start, Stop, RunOnce and IsRunning:
//
//	reconciler := jobs.NewReconciler(reconcileService, time.Minute)
//	reconciler.Start()
//	defer reconciler.Stop()
//
// # Error Handling
//
// Jobs log errors but don't crash the application. Work that could not be
// finished is picked up again on the next tick.
package jobs
