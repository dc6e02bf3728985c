// neolinkd bridges Reolink cameras, exposed over MQTT by neolink, into the
// host's device model.
//
// It keeps one shared MQTT session, tracks camera state (connection, motion,
// battery, preview, presets), forwards PTZ and switch commands to neolink,
// and serves an HTTP API with a WebSocket feed of state changes. It can
// optionally supervise the neolink binary itself.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
