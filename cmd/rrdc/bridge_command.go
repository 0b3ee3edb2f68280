package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/rrdcached-go/internal/infrastructure/mqtt"
	"github.com/nerrad567/rrdcached-go/internal/ingest"
)

func newBridgeCommand(ctx *commandContext) *cobra.Command {
	var updateTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Apply samples published over MQTT until interrupted",
		Long: `Subscribes to <prefix>/update/<file> and issues one UPDATE per message.
The payload is one or more samples in time:value[:value...] form,
separated by whitespace. Rejected messages are reported on
<prefix>/error/<file> when ingest.publish_errors is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Ingest.TopicPrefix == "" {
				return errors.New("ingest.topic_prefix is required")
			}
			dc, err := ctx.dialConfig(cmd)
			if err != nil {
				return err
			}
			log := ctx.logger(cmd)

			topics := mqtt.Topics{Prefix: cfg.Ingest.TopicPrefix}
			mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
			if err != nil {
				return err
			}
			mqttClient.SetLogger(log.With("component", "mqtt"))
			defer mqttClient.Close()

			bridge, err := ingest.NewBridge(ingest.Options{
				MQTT:          mqttClient,
				Dial:          ingest.DialRRDCached(dc),
				Topics:        topics,
				QoS:           byte(cfg.MQTT.QoS),
				PublishErrors: cfg.Ingest.PublishErrors,
				UpdateTimeout: updateTimeout,
				Logger:        log.With("component", "ingest"),
			})
			if err != nil {
				return err
			}

			runCtx := cmd.Context()
			if err := bridge.Start(runCtx); err != nil {
				return err
			}
			log.Info("bridge running", "daemon", dc.Address, "topic", topics.AllUpdates())

			<-runCtx.Done()
			bridge.Stop()

			m := bridge.Metrics()
			log.Info("bridge finished",
				"received", m.Received,
				"applied", m.Applied,
				"rejected", m.Rejected,
				"dials", m.Dials,
			)
			return nil
		},
	}

	cmd.Flags().DurationVar(&updateTimeout, "update-timeout", 5*time.Second, "Bound on each UPDATE round trip")
	return cmd
}
