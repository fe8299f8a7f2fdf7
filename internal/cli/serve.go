package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	bridge "github.com/xiaot623/gogo/fitsync/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP bridge in front of the sync engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Close()

			port := app.Config.BridgePort
			if cmd.Flags().Changed("port") {
				port, _ = cmd.Flags().GetInt("port")
			}

			sess := app.Engine.Session().Current()
			app.Logger.Info("starting fitsync bridge",
				zap.Int("port", port),
				zap.String("api_url", app.Config.APIURL),
				zap.String("session", string(sess.State)),
			)

			e := bridge.NewBridgeServer(app.Engine, app.Metrics.Registry, app.Logger)
			errCh := make(chan error, 1)
			go func() {
				if err := e.Start(fmt.Sprintf(":%d", port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			ctx, stop := notifyContext(cmd.Context())
			defer stop()
			select {
			case err := <-errCh:
				if err != nil {
					return writeCommandError(cmd, err)
				}
				return nil
			case <-ctx.Done():
			}

			app.Logger.Info("shutting down fitsync bridge")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := e.Shutdown(shutdownCtx); err != nil {
				app.Logger.Warn("bridge did not shut down gracefully", zap.Error(err))
			}
			return nil
		},
	}
	cmd.Flags().Int("port", 0, "bridge port (default from BRIDGE_PORT)")
	return cmd
}

func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
