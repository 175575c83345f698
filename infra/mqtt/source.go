package mqtt

import (
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/smartbin/fleetops/core/model"
	"github.com/smartbin/fleetops/infra/logger"
)

// snapshot is the wire form of one bin telemetry message.
type snapshot struct {
	BinID               string            `json:"bin_id"`
	FillLevel           int               `json:"fill_level"`
	Status              string            `json:"status"`
	Location            string            `json:"location,omitempty"`
	Coordinates         model.Coordinates `json:"coordinates"`
	NextScheduledPickup time.Time         `json:"next_scheduled_pickup,omitempty"`
	Timestamp           time.Time         `json:"timestamp"`
}

// Source subscribes to the bin telemetry topic and feeds decoded snapshots
// into a channel consumed by the dispatch coordinator. Delivery upstream is
// at-least-once; duplicates are tolerated by the edge-triggered classifier.
type Source struct {
	cli     paho.Client
	topic   string
	qos     byte
	log     logger.Logger
	updates chan model.BinUpdate
}

// NewSource connects to the broker and prepares the telemetry subscription.
func NewSource(cfg Config, buffer int) (*Source, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.SetClientID(cfg.ClientID + "-telemetry-" + uuid.NewString()[:8])
	if buffer <= 0 {
		buffer = 256
	}
	s := &Source{
		topic:   cfg.TelemetryTopic,
		qos:     cfg.QoS,
		log:     logger.New("telemetry-source"),
		updates: make(chan model.BinUpdate, buffer),
	}
	opts.OnConnect = func(c paho.Client) {
		s.log.Infof("MQTT connected, subscribing %s", s.topic)
		if token := c.Subscribe(s.topic, s.qos, s.onMessage); token.Wait() && token.Error() != nil {
			s.log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		s.log.Errorf("connection lost: %v", err)
	}
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	s.cli = cli
	return s, nil
}

func (s *Source) onMessage(_ paho.Client, msg paho.Message) {
	var snap snapshot
	if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
		s.log.Warnf("malformed telemetry on %s: %v", msg.Topic(), err)
		return
	}
	status, err := model.ParseBinStatus(snap.Status)
	if err != nil {
		s.log.Warnf("telemetry for %s: %v", snap.BinID, err)
		return
	}
	u := model.BinUpdate{
		BinID:               snap.BinID,
		FillLevel:           snap.FillLevel,
		Status:              status,
		Location:            snap.Location,
		Coordinates:         snap.Coordinates,
		NextScheduledPickup: snap.NextScheduledPickup,
		Timestamp:           snap.Timestamp,
	}
	select {
	case s.updates <- u:
	default:
		s.log.Warnf("telemetry buffer full, dropping update for %s", snap.BinID)
	}
}

// Updates returns the channel of decoded telemetry snapshots.
func (s *Source) Updates() <-chan model.BinUpdate { return s.updates }

// Close unsubscribes and disconnects. The updates channel is closed so the
// consumer's loop terminates; cancelling the subscription stops new route
// creation but does not affect routes already created.
func (s *Source) Close() error {
	if token := s.cli.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		s.log.Warnf("unsubscribe: %v", token.Error())
	}
	s.cli.Disconnect(250)
	close(s.updates)
	return nil
}
