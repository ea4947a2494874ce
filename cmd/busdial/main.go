// SPDX-License-Identifier: GPL-3.0-or-later

// Command busdial dials a D-Bus bus address, completes the connection
// handshake, and sends a Ping to org.freedesktop.DBus.Peer, printing the
// round trip. It exists to exercise the engine end-to-end outside of
// its unit tests.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bassosimone/busconn"
)

func main() {
	address := flag.String("address", "", "bus address (defaults to the session bus)")
	system := flag.Bool("system", false, "use the system bus default when -address is empty")
	timeout := flag.Duration("timeout", 10*time.Second, "overall timeout for connect+call")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(*address, *system, *timeout, logger); err != nil {
		logger.Error("busdial failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(address string, system bool, timeout time.Duration, logger *slog.Logger) error {
	if address == "" {
		address = busconn.EnvAddress(system)
	}
	if address == "" {
		return fmt.Errorf("no bus address given and none found in the environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg := busconn.NewConfig()
	cfg.Logger = logger

	conn, err := busconn.NewConnection(cfg, address, nil)
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}
	defer conn.Unref()

	if err := conn.Start(); err != nil {
		return fmt.Errorf("starting connection: %w", err)
	}
	if err := waitUntilRunning(ctx, conn); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	ping := busconn.NewMethodCall("org.freedesktop.DBus", "/org/freedesktop/DBus", "org.freedesktop.DBus.Peer", "Ping")
	start := time.Now()
	if _, err := conn.Call(ctx, ping, busconn.NoTimeout); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	logger.Info("ping succeeded",
		slog.String("unique_name", conn.UniqueName()),
		slog.String("server_id", conn.ServerID()),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// waitUntilRunning drives [*busconn.Connection.Process] until the
// connection reaches the Running state, honoring ctx's deadline.
func waitUntilRunning(ctx context.Context, conn *busconn.Connection) error {
	for conn.State() != busconn.StateRunning {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		progressed, err := conn.Process(ctx)
		if err != nil {
			return err
		}
		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}
	return nil
}
