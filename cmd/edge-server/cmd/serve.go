package cmd

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bitriver/edge/internal/blobstore"
	"github.com/bitriver/edge/internal/edge"
	"github.com/bitriver/edge/internal/edge/signing"
	"github.com/bitriver/edge/internal/metadata"
	"github.com/bitriver/edge/internal/observability/metrics"
	"github.com/bitriver/edge/internal/roomdb"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the edge server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().String("metrics-listen", "", "Metrics HTTP listen address (overrides config)")

	viper.BindPFlag("server.listen_addr_flag", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("server.metrics_addr_flag", serveCmd.Flags().Lookup("metrics-listen"))
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.Default()
	ctx := context.Background()

	rooms, err := roomdb.NewRepository(ctx, viper.GetString("database.dsn"))
	if err != nil {
		return fmt.Errorf("connecting to room database: %w", err)
	}

	metadataStore, err := metadata.NewRedisStore(ctx, viper.GetString("metadata.redis_addr"), viper.GetString("metadata.redis_password"), viper.GetInt("metadata.redis_db"))
	if err != nil {
		return fmt.Errorf("connecting to metadata store: %w", err)
	}

	blobs, err := buildBlobStore()
	if err != nil {
		return fmt.Errorf("initializing blob store: %w", err)
	}

	secret, err := sessionSecret()
	if err != nil {
		return fmt.Errorf("resolving session secret: %w", err)
	}

	roomKeyPEMs := viper.GetStringMapString("signing.room_token_keys")
	roomKeys, err := signing.LoadStaticKeyProvider(roomKeyPEMs)
	if err != nil {
		return fmt.Errorf("loading room token keys: %w", err)
	}

	listenAddr := viper.GetString("server.listen_addr")
	if v := viper.GetString("server.listen_addr_flag"); v != "" {
		listenAddr = v
	}
	metricsAddr := viper.GetString("server.metrics_addr")
	if v := viper.GetString("server.metrics_addr_flag"); v != "" {
		metricsAddr = v
	}

	server := edge.NewServer(edge.Config{ListenAddr: listenAddr}, edge.Deps{
		Rooms:    rooms,
		Metadata: metadataStore,
		Blobs:    blobs,
		Signer:   signing.NewSigner(secret),
		RoomKeys: roomKeys,
	})

	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler()}

	ctxSig, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	go func() {
		<-ctxSig.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("edge server shutdown error", "error", err)
		}
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting edge server", "listen_addr", listenAddr, "metrics_addr", metricsAddr)
	if err := server.Start(); err != nil {
		return fmt.Errorf("edge server: %w", err)
	}
	return nil
}

func buildBlobStore() (blobstore.Store, error) {
	switch viper.GetString("blobstore.backend") {
	case "azure":
		return blobstore.NewAzureStore(viper.GetString("blobstore.azure_account_url"), viper.GetString("blobstore.azure_container"))
	default:
		return blobstore.NewMemoryStore(), nil
	}
}

// sessionSecret resolves the HMAC secret edge-issued session/media/
// screenshot claims are signed with. An operator-supplied secret is
// required for a deployment where multiple edge-server replicas must
// accept each other's sessions; a missing one falls back to a
// process-local random secret suitable only for a single-replica
// deployment, since a restart invalidates every outstanding session.
func sessionSecret() ([]byte, error) {
	if s := viper.GetString("signing.session_secret"); s != "" {
		return []byte(s), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	slog.Default().Warn("signing.session_secret not set; generated an ephemeral per-process secret")
	return secret, nil
}
