package catalogd

import (
	"fmt"

	"github.com/edgeflare/catalogd/pkg/forward"
	"github.com/edgeflare/catalogd/pkg/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var forwardCmd = &cobra.Command{
	Use:     "forward FILE",
	Aliases: []string{"f"},
	Short:   "Publish a local CSV file to the ingest topic",
	Long: `Reads FILE and publishes it through the sink peer. In file mode the whole
file is one message, in lines mode every line is its own message.`,
	Args: cobra.ExactArgs(1),
	RunE: runForward,
}

func init() {
	f := forwardCmd.Flags()
	f.String("forward.sink", "", "name of the peer to publish through")
	f.String("forward.topic", "", "topic to publish to")
	f.String("forward.mode", "", "file or lines")
	viper.BindPFlags(f)
}

func runForward(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	fc := cfg.Forward

	mode, err := forward.ParseMode(fc.Mode)
	if err != nil {
		return err
	}

	m := pipeline.NewManager(logger)
	defer m.Close()

	sink, err := connectPeer(ctx, m, fc.Sink)
	if err != nil {
		return fmt.Errorf("connect sink: %w", err)
	}
	if !pipeline.CanPub(sink) {
		return fmt.Errorf("peer %q: %w", fc.Sink, pipeline.ErrConnectorTypeMismatch)
	}

	p, _ := cfg.Peer(fc.Sink)
	n, err := forward.New(sink, fc.Topic, mode, p.ConnectorName, logger).ForwardFile(ctx, args[0])
	if err != nil {
		return err
	}
	logger.Info("file forwarded", zap.String("file", args[0]), zap.String("topic", fc.Topic), zap.Int("messages", n))
	return nil
}
