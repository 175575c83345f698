package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/smartbin/fleetops/config"
	"github.com/smartbin/fleetops/core/model"
	"github.com/smartbin/fleetops/infra/mqtt"
)

var (
	ingestBinID     string
	ingestFillLevel int
	ingestStatus    string
	ingestLocation  string
	ingestLat       float64
	ingestLng       float64
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Publish a synthetic bin telemetry snapshot",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestBinID, "bin", "bin-test", "bin identifier")
	ingestCmd.Flags().IntVar(&ingestFillLevel, "fill", 90, "fill level percentage")
	ingestCmd.Flags().StringVar(&ingestStatus, "status", "overflow", "bin status (active|overflow|maintenance|collected)")
	ingestCmd.Flags().StringVar(&ingestLocation, "location", "test street 1", "human-readable location")
	ingestCmd.Flags().Float64Var(&ingestLat, "lat", 48.8566, "latitude")
	ingestCmd.Flags().Float64Var(&ingestLng, "lng", 2.3522, "longitude")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, err := model.ParseBinStatus(ingestStatus); err != nil {
		return err
	}

	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = fmt.Sprintf("%s-ingest-%d", mqttCfg.ClientID, time.Now().UnixNano())
	opts, err := mqtt.NewClientOptions(mqttCfg)
	if err != nil {
		return err
	}
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	defer cli.Disconnect(250)

	payload, err := json.Marshal(map[string]any{
		"bin_id":     ingestBinID,
		"fill_level": ingestFillLevel,
		"status":     ingestStatus,
		"location":   ingestLocation,
		"coordinates": map[string]float64{
			"lat": ingestLat,
			"lng": ingestLng,
		},
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("waste/bins/%s/telemetry", ingestBinID)
	if token := cli.Publish(topic, mqttCfg.QoS, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	fmt.Printf("published %s fill=%d status=%s to %s\n", ingestBinID, ingestFillLevel, ingestStatus, topic)
	return nil
}
