// Command simulator publishes synthetic bin telemetry to the broker so the
// dispatch service can be exercised without hardware.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type snapshot struct {
	BinID     string `json:"bin_id"`
	FillLevel int    `json:"fill_level"`
	Status    string `json:"status"`
	Location  string `json:"location,omitempty"`
	Coords    struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"coordinates"`
	NextScheduledPickup time.Time `json:"next_scheduled_pickup,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	size := flag.Int("bins", 20, "number of simulated bins")
	interval := flag.Duration("interval", 5*time.Second, "telemetry interval")
	topicFmt := flag.String("topic", "waste/bins/%s/telemetry", "topic format, %s is the bin id")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := paho.NewClientOptions().AddBroker(*broker).SetClientID(fmt.Sprintf("bin-sim-%d", time.Now().UnixNano()))
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("mqtt connect: %v", token.Error())
	}
	defer cli.Disconnect(250)

	bins := GenerateFleet(FleetConfig{
		Size:         *size,
		FillRateMin:  1,
		FillRateMax:  8,
		ScheduledPct: 0.3,
		CenterLat:    48.8566,
		CenterLng:    2.3522,
		Spread:       0.1,
	})
	log.Printf("simulating %d bins every %s against %s", len(bins), *interval, *broker)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := range bins {
				b := &bins[i]
				status := b.Step()
				var snap snapshot
				snap.BinID = b.ID
				snap.FillLevel = b.FillLevel
				snap.Status = status
				snap.Coords.Lat = b.Lat
				snap.Coords.Lng = b.Lng
				snap.NextScheduledPickup = b.NextScheduledPickup
				snap.Timestamp = time.Now().UTC()
				body, err := json.Marshal(snap)
				if err != nil {
					log.Printf("encode %s: %v", b.ID, err)
					continue
				}
				topic := fmt.Sprintf(*topicFmt, b.ID)
				if token := cli.Publish(topic, 0, false, body); token.Wait() && token.Error() != nil {
					log.Printf("publish %s: %v", topic, token.Error())
				}
				// A full bin is eventually collected out of band.
				if b.FillLevel == 100 && fleetRng.Float64() < 0.2 {
					b.Reset()
				}
			}
		}
	}
}
