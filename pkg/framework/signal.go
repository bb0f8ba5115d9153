package framework

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
)

// HandleSignals returns a context canceled on Ctrl-C or SIGTERM.
// A second signal exits the process immediately with exitCode, since the
// target may be stuck in a blocking transfer.
func HandleSignals(ctx context.Context, exitCode int) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			signal.Stop(sigCh)
			return
		}
		glog.Info("stop requested")
		cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		glog.Flush()
		os.Exit(exitCode)
	}()
	return ctx, cancel
}
