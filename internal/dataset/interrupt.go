package dataset

import (
	"log/slog"
	"os"
)

// OnInterrupt waits for the first signal on sigs, runs cleanup and calls exit
// with status 1. It returns without doing anything once done is closed.
func OnInterrupt(done <-chan struct{}, sigs <-chan os.Signal, log *slog.Logger, cleanup func() error, exit func(int)) {
	select {
	case <-done:
		return
	case sig := <-sigs:
		log.Warn("interrupted; cleaning up", "signal", sig.String())
		if cleanup != nil {
			if err := cleanup(); err != nil {
				log.Error("cleanup after interrupt", "err", err)
			}
		}
		exit(1)
	}
}
