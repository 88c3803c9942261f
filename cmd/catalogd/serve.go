package catalogd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/edgeflare/catalogd/pkg/api"
	"github.com/edgeflare/catalogd/pkg/httputil"
	mw "github.com/edgeflare/catalogd/pkg/httputil/middleware"
	"github.com/edgeflare/catalogd/pkg/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the catalog over REST",
	Long: `Starts the REST API on rest.listenAddr under rest.baseURL. Unless --consume=false,
the ingestion consumer runs in the same process against the same store.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("rest.listenAddr", "l", "", "REST server listen address")
	f.String("rest.baseURL", "", "base URL for API endpoints")
	f.StringSlice("rest.corsOrigins", nil, "allowed CORS origins (default *)")
	f.Bool("consume", true, "run the ingestion consumer alongside the API")
	viper.BindPFlags(f)
}

func newRouter(svc api.Service) *httputil.Router {
	r := httputil.NewRouter(
		httputil.WithLogger(logger),
		httputil.WithTLS(cfg.REST.TLS.CertFile, cfg.REST.TLS.KeyFile),
	)

	var cors *mw.CORSOptions
	if len(cfg.REST.CORSOrigins) > 0 {
		cors = &mw.CORSOptions{
			AllowedOrigins: cfg.REST.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Accept", "Origin", mw.RequestIDHeader},
		}
	}

	r.Use(
		mw.RequestID,
		mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}),
		mw.CORSWithOptions(cors),
	)
	api.Register(r.Group(cfg.REST.BaseURL), svc)
	return r
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer closeStore()

	engine := newEngine(s)
	m := pipeline.NewManager(logger)
	defer m.Close()

	var wg sync.WaitGroup
	errChan := make(chan error, 1)

	startMetrics(ctx, &wg)
	if viper.GetBool("consume") {
		if err := startConsumer(ctx, m, engine, &wg, errChan); err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("failed to start consumer: %w", err)
		}
	}

	router := newRouter(engine)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := router.ListenAndServe(cfg.REST.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errChan <- fmt.Errorf("REST server: %w", err):
			default:
			}
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := router.Shutdown(shutdownCtx); err != nil {
			logger.Error("REST server shutdown", zap.Error(err))
		}
	}()

	logger.Info("catalog API ready", zap.String("addr", cfg.REST.ListenAddr), zap.String("baseURL", cfg.REST.BaseURL))
	return waitForShutdown(cancel, &wg, errChan)
}
