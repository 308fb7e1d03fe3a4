// File: internal/browser/context.go
package browser

import "context"

// CombineContext returns a context that carries the values of primary (the
// chromedp tab context) and ends when either primary or secondary (the
// caller's context) is done. The returned func must be called to release it.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(secondary, func() {
		cancel(context.Cause(secondary))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}
