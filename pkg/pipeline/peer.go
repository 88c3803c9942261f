package pipeline

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Peer is a message source/destination with an associated connector (ie Kafka, NATS, MQTT).
type Peer struct {
	Name          string `mapstructure:"name"`
	ConnectorName string `mapstructure:"connector"`
	// Config contains the connection config of underlying library,
	// decoded by the connector with DecodeConfig.
	Config map[string]any `mapstructure:"config"`
}

// DecodeConfig decodes a peer's raw config map into out. Durations may be given
// as strings ("5s") and lists as comma separated strings.
func DecodeConfig(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode connector config: %w", err)
	}
	return nil
}
