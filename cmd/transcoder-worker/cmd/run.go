package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bitriver/edge/internal/blobstore"
	"github.com/bitriver/edge/internal/eventbus"
	"github.com/bitriver/edge/internal/metadata"
	"github.com/bitriver/edge/internal/transcoder"
	"github.com/bitriver/edge/internal/transcoderworker"
	"github.com/bitriver/edge/internal/transmux"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the Event Bus for assignments and cut this worker's rendition",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("rendition", "", "rendition name this worker cuts (overrides config)")
	runCmd.Flags().String("kind", "", "track kind this worker cuts: video or audio (overrides config)")

	viper.BindPFlag("rendition.name_flag", runCmd.Flags().Lookup("rendition"))
	viper.BindPFlag("rendition.kind_flag", runCmd.Flags().Lookup("kind"))
}

func runRun(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rendition := viper.GetString("rendition.name")
	if v := viper.GetString("rendition.name_flag"); v != "" {
		rendition = v
	}
	kindName := viper.GetString("rendition.kind")
	if v := viper.GetString("rendition.kind_flag"); v != "" {
		kindName = v
	}
	kind, err := parseKind(kindName)
	if err != nil {
		return err
	}

	bus, err := eventbus.NewRedisBus(ctx, viper.GetString("eventbus.redis_addr"), viper.GetString("eventbus.redis_password"), viper.GetInt("eventbus.redis_db"))
	if err != nil {
		return fmt.Errorf("connecting to event bus: %w", err)
	}
	defer bus.Close()

	meta, err := metadata.NewRedisStore(ctx, viper.GetString("metadata.redis_addr"), viper.GetString("metadata.redis_password"), viper.GetInt("metadata.redis_db"))
	if err != nil {
		return fmt.Errorf("connecting to metadata store: %w", err)
	}

	blobs, err := buildBlobStore()
	if err != nil {
		return fmt.Errorf("initializing blob store: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	logger.Info("starting transcoder worker", "rendition", rendition, "kind", kind.String())
	return transcoderworker.Run(ctx, transcoderworker.Config{
		Rendition: rendition,
		Kind:      kind,
	}, transcoderworker.Deps{
		Bus:   bus,
		Blobs: blobs,
		Meta:  meta,
	})
}

func buildBlobStore() (transcoder.BlobStore, error) {
	switch viper.GetString("blobstore.backend") {
	case "azure":
		return blobstore.NewAzureStore(viper.GetString("blobstore.azure_account_url"), viper.GetString("blobstore.azure_container"))
	default:
		return blobstore.NewMemoryStore(), nil
	}
}

func parseKind(name string) (transmux.FragmentKind, error) {
	switch name {
	case "video":
		return transmux.FragmentVideo, nil
	case "audio":
		return transmux.FragmentAudio, nil
	default:
		return 0, fmt.Errorf("invalid rendition kind %q: want video or audio", name)
	}
}
