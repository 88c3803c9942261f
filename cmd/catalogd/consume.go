package catalogd

import (
	"context"
	"fmt"
	"sync"

	"github.com/edgeflare/catalogd/pkg/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var consumeCmd = &cobra.Command{
	Use:     "consume",
	Aliases: []string{"c"},
	Short:   "Consume CSV batches and reconcile them into the store",
	Long: `Subscribes to the ingest topic of the source peer. Every message is parsed
as a CSV batch and its records are inserted or overwritten by code.`,
	RunE: runConsume,
}

func init() {
	f := consumeCmd.Flags()
	f.String("ingest.source", "", "name of the peer to consume from")
	f.String("ingest.topic", "", "topic carrying CSV batches")
	f.Int("ingest.maxDeliveries", 0, "deliveries of a rejected message before it is dead-lettered or dropped (0 is unlimited)")
	f.String("ingest.deadLetterTopic", "", "topic receiving messages that exhausted their deliveries")
	viper.BindPFlags(f)
}

func runConsume(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer closeStore()

	m := pipeline.NewManager(logger)
	defer m.Close()

	var wg sync.WaitGroup
	errChan := make(chan error, 1)

	startMetrics(ctx, &wg)
	if err := startConsumer(ctx, m, newEngine(s), &wg, errChan); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	return waitForShutdown(cancel, &wg, errChan)
}
