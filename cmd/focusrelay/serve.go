package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neboloop/focusrelay/internal/config"
	"github.com/neboloop/focusrelay/internal/lifecycle"
	"github.com/neboloop/focusrelay/internal/logging"
	"github.com/neboloop/focusrelay/internal/textservice"
)

// ServeCmd creates the serve command (local text service only)
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the local text service",
		Long: `Start the websocket text service on service.addr. It watches the vault
directory (service.vault_path or OBSIDIAN_VAULT_PATH) for new notes and answers
each GET_LAST_TEXT with the newest one, once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*ServerConfig)
		},
	}
}

func runServe(c config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		lifecycle.Emit(lifecycle.EventShutdownStarted, nil)
		cancel()
	}()

	lifecycle.OnShutdown(func() {
		logging.Info("shutting down text service")
	})
	lifecycle.On(lifecycle.EventNoteUpdated, func(_ lifecycle.Event, data any) {
		logging.Debugf("latest note: %v", data)
	})

	svc := textservice.New(textservice.Options{
		VaultPath: c.Service.VaultPath,
		PushRate:  c.Service.PushRate,
		PushBurst: c.Service.PushBurst,
	})
	err := svc.Run(ctx, c.Service.Addr)
	lifecycle.Emit(lifecycle.EventShutdownComplete, nil)
	return err
}
