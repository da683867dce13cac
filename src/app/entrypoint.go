package app

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

type Entrypoint interface {
	io.Closer
	Init(ctx context.Context) error
	Run(ctx context.Context) error
}

// Run initializes the entrypoint, runs it until it returns or the process is
// interrupted, and closes it afterwards.
func Run(ctx context.Context, e Entrypoint) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := e.Init(ctx); err != nil {
		return fmt.Errorf("entrypoint init error: %w", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	eg, runCtx := errgroup.WithContext(runCtx)

	eg.Go(func() error {
		defer stop()
		return e.Run(runCtx)
	})

	// graceful shutdown
	eg.Go(func() error {
		<-runCtx.Done()
		return e.Close()
	})

	return eg.Wait()
}
