// internal/browser/context_utils.go
package browser

import "context"

// CombineContext returns a context derived from tabCtx that is also cancelled
// when opCtx is done. Values (the CDP target) come from tabCtx; the deadline of
// the individual operation comes from opCtx.
func CombineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(tabCtx)

	// The goroutine exits when either side finishes.
	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
