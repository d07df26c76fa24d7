package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neboloop/focusrelay/internal/browser"
	"github.com/neboloop/focusrelay/internal/config"
	"github.com/neboloop/focusrelay/internal/crashlog"
	"github.com/neboloop/focusrelay/internal/defaults"
	"github.com/neboloop/focusrelay/internal/events"
	"github.com/neboloop/focusrelay/internal/lifecycle"
	"github.com/neboloop/focusrelay/internal/logging"
	"github.com/neboloop/focusrelay/internal/relay"
	"github.com/neboloop/focusrelay/internal/socket"
)

// RelayCmd creates the relay command (background context + browser)
func RelayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Attach to Chrome and relay service text into focused fields",
		Long: `Connect to the text service and to Chrome. Every page gets a content
context; focusing an editable field asks the service for text, and every
INSERT_TEXT the service sends lands in the active tab's focused field.

Set browser.cdp_url (or FOCUSRELAY_CDP_URL) to attach to a running Chrome
started with --remote-debugging-port; otherwise one is launched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(*ServerConfig)
		},
	}
}

func runRelay(c config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Infof("received %v, shutting down", sig)
		cancel()
	}()

	subject := events.NewSubject(
		events.WithLogger(slog.Default()),
		events.WithBufferSize(c.Relay.BusBuffer),
		events.WithEmitTimeout(c.Relay.BusEmitTimeout),
	)
	defer events.Complete(subject)
	bus := relay.NewBus(subject)

	sock := socket.New(c.Relay.URL, socket.WithReconnect(reconnectPolicy(c.Relay.Reconnect)))
	sock.OnStateChange(func(s socket.State) {
		data := lifecycle.SocketEventData{URL: c.Relay.URL, State: s.String()}
		switch s {
		case socket.StateOpen:
			lifecycle.Emit(lifecycle.EventSocketOpen, data)
		case socket.StateClosed, socket.StateErrored:
			lifecycle.Emit(lifecycle.EventSocketClosed, data)
		}
	})
	lifecycle.OnSocketState(func(d lifecycle.SocketEventData) {
		logging.Infof("text service %s: %s", d.URL, d.State)
	})
	lifecycle.OnTabAttached(func(d lifecycle.TabEventData) {
		slog.Debug("content context listening", "tab", d.TabID, "url", d.URL)
	})
	lifecycle.OnTabDetached(func(d lifecycle.TabEventData) {
		slog.Debug("content context gone", "tab", d.TabID)
	})

	bcfg := browserConfig(c)
	if !bcfg.Remote() && bcfg.UserDataDir == "" {
		if _, err := defaults.EnsureDataDir(); err == nil {
			bcfg.UserDataDir, _ = defaults.ChromeProfileDir()
		} else {
			logging.Warnf("no data directory, using a throwaway profile: %v", err)
		}
	}

	mgr := browser.NewManager(bcfg, bus)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("browser: %w", err)
	}

	bg := relay.NewBackground(sock, mgr, bus, relay.WithResolveTimeout(c.Relay.ResolveTimeout))
	done := make(chan error, 1)
	go func() { done <- bg.Run(ctx) }()

	if err := sock.Connect(ctx); err != nil {
		// Requests are dropped until the socket opens.
		logging.Warnf("text service unavailable at %s: %v", c.Relay.URL, err)
	}

	lifecycle.Emit(lifecycle.EventRelayStarted, nil)
	logging.Infof("relaying %s into the active tab", c.Relay.URL)

	<-ctx.Done()
	lifecycle.Emit(lifecycle.EventShutdownStarted, nil)

	_ = sock.Close()
	<-done
	_ = mgr.Stop()

	slog.Info("relay stopped", "bus_events", subject.EventCount(), "recovered_panics", crashlog.Count())
	lifecycle.Emit(lifecycle.EventShutdownComplete, nil)
	return nil
}

func reconnectPolicy(r config.ReconnectConfig) socket.ReconnectPolicy {
	return socket.ReconnectPolicy{
		MaxAttempts:   r.MaxAttempts,
		BaseDelay:     r.BaseDelay,
		MaxDelay:      r.MaxDelay,
		JitterPercent: r.JitterPercent,
	}
}

func browserConfig(c config.Config) browser.Config {
	return browser.Config{
		CDPURL:         c.Browser.CDPURL,
		ExecutablePath: c.Browser.ExecutablePath,
		Headless:       c.Browser.Headless,
		NoSandbox:      c.Browser.NoSandbox,
		UserDataDir:    c.Browser.UserDataDir,
		StartURL:       c.Browser.StartURL,
		InsertTimeout:  c.Relay.InsertTimeout,
		ProbeTimeout:   c.Browser.ProbeTimeout,
	}
}
