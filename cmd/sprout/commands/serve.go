package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/sprout/am"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/server"
	"github.com/teranos/sprout/session"
)

const shutdownTimeout = 5 * time.Second

// ServeCmd exposes a session to renderers over HTTP and WebSocket
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the graph store to renderers over WebSocket",
	Long: `Start the renderer hub.

Every applied batch is pushed to WebSocket clients on /ws together with the
current lock set. Streams are started with POST /api/stream and cancelled with
DELETE /api/stream. Node opens are checked with
POST /api/branches/<branch>/nodes/<id>/open and refused with 423 when locked.`,
	RunE: runServe,
}

var (
	serveAddr   string
	serveUserID string
)

func init() {
	ServeCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default server.addr)")
	ServeCmd.Flags().StringVarP(&serveUserID, "user", "u", "", "Load this user's graph before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := session.NewFromConfig(cfg)
	if serveUserID != "" {
		if err := sess.Refresh(ctx, serveUserID); err != nil {
			pterm.Warning.Printfln("Could not load existing graph: %v", err)
		}
	}

	hub := server.New(sess, server.WithAllowedOrigins(cfg.Server.AllowedOrigins))
	errCh := make(chan error, 1)
	go func() { errCh <- hub.ListenAndServe(addr) }()
	pterm.Info.Printfln("Renderer hub on ws://%s/ws", addr)

	select {
	case err := <-errCh:
		sess.CancelStream()
		_ = hub.Close(context.Background())
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	sess.CancelStream()
	if err := hub.Close(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shut down")
	}
	pterm.Info.Println("Renderer hub stopped")
	return nil
}
