package util

import (
	"log/slog"
	"time"
)

// Trace 用法：defer util.Trace("remove background")()
func Trace(name string) func() {
	start := time.Now()
	slog.Debug("start", "name", name)
	return func() {
		slog.Info("done", "name", name, "elapsed", time.Since(start))
	}
}
