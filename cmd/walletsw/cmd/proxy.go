package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/wallet-sw/pkg/lifecycle"
	"github.com/Sternrassler/wallet-sw/pkg/logging"
	"github.com/Sternrassler/wallet-sw/pkg/metrics"
	"github.com/Sternrassler/wallet-sw/pkg/router"
	"github.com/gorilla/mux"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 10 * time.Second

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Serve the origin through the offline cache router",
	Long: "Installs the current cache version in the background and proxies every\n" +
		"request to the origin through the router. Until a version is active,\n" +
		"requests go straight to the origin and /readyz reports 503.",
	Args: cobra.NoArgs,
	RunE: runProxy,
}

func init() {
	proxyCmd.Flags().String("listen", "", "listen address (default: :8080)")
	viper.BindPFlag("listen", proxyCmd.Flags().Lookup("listen"))

	rootCmd.AddCommand(proxyCmd)
}

func runProxy(cmd *cobra.Command, args []string) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger("proxy")

	set, err := loadSettings(viper.GetViper())
	if err != nil {
		return err
	}

	storage, closeStorage, err := openStorage(ctx, set.Store)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStorage(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	network := http.DefaultTransport
	rt, err := router.New(set.Router, storage, network)
	if err != nil {
		return err
	}
	reg := lifecycle.NewRegistration(lifecycle.Options{Network: network, Retry: set.Retry})

	srv := &http.Server{
		Addr:              set.Listen,
		Handler:           newProxyHandler(set.Router.Origin, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var install conc.WaitGroup
	install.Go(func() {
		if _, err := reg.Register(ctx, rt); err != nil {
			logger.Error().Err(err).Msg("Worker registration failed, proxying straight to the origin")
		}
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("listen", set.Listen).
			Str("origin", set.Router.Origin.String()).
			Str("cache", set.Router.VersionTag).
			Str("backend", set.Store.Backend).
			Msg("Starting offline cache proxy")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		stop()
		install.Wait()
		rt.Flush()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn().Err(err).Msg("Graceful shutdown incomplete")
	}

	install.Wait()
	rt.Flush()
	return nil
}

// newProxyHandler serves the operational endpoints and proxies everything
// else to origin through reg.
func newProxyHandler(origin *url.URL, reg *lifecycle.Registration) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", readyHandler(reg)).Methods(http.MethodGet)
	r.HandleFunc("/statusz", statusHandler(reg)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(newReverseProxy(origin, reg))
	return r
}

func newReverseProxy(origin *url.URL, transport http.RoundTripper) *httputil.ReverseProxy {
	logger := logging.NewLogger("proxy")
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.SetXForwarded()
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn().Err(err).Str("url", r.URL.String()).Msg("Origin unreachable")
			http.Error(w, "origin unreachable", http.StatusBadGateway)
		},
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func readyHandler(reg *lifecycle.Registration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !reg.Ready() {
			http.Error(w, "no active worker", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

func statusHandler(reg *lifecycle.Registration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reg.Status())
	}
}
