// Package shutdown ties a context to SIGINT and SIGTERM.
package shutdown

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// WithSignals returns a context cancelled on the first SIGINT or SIGTERM.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(ch)
		select {
		case <-ctx.Done():
		case sig := <-ch:
			log.Printf("🛑 %s received, shutting down", sig)
			cancel()
		}
	}()

	return ctx, cancel
}
