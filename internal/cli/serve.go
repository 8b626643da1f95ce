package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/containerd/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jbweber/homelab/guestcfg/internal/api"
	"github.com/jbweber/homelab/guestcfg/internal/repository"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the inventory API and NoCloud endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// newRouter wires the API onto a chi router with the standard middleware.
func newRouter(repos *repository.Repositories, dial api.Dialer) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	api.NewAPI(repos, dial).RegisterRoutes(r)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintln(w, "guestcfg is running"); err != nil {
			log.G(r.Context()).WithError(err).Warn("failed to write response")
		}
	})
	return r
}

func runServe(ctx context.Context, opts *options) error {
	db, err := opts.cfg.InitializeDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	srv := &http.Server{
		Addr:              ":" + opts.cfg.Port,
		Handler:           newRouter(repository.NewRepositories(db), opts.dial),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.G(ctx).WithField("addr", srv.Addr).Info("starting guestcfg")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.G(ctx).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
