package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/smartbin/fleetops/core/events"
	"github.com/smartbin/fleetops/infra/logger"
)

// Notifier publishes dispatch events to per-driver notification topics:
// <prefix>/<driver>/<event>. An external delivery mechanism (push gateway,
// UI subscription) consumes them.
type Notifier struct {
	cli    paho.Client
	prefix string
	qos    byte
	log    logger.Logger
}

// NewNotifier connects to the broker for outbound notifications.
func NewNotifier(cfg Config) (*Notifier, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.SetClientID(cfg.ClientID + "-notifier")
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Notifier{cli: cli, prefix: cfg.NotifyPrefix, qos: cfg.QoS, log: logger.New("notifier")}, nil
}

func (n *Notifier) publish(ctx context.Context, driverID, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", event, err)
	}
	topic := fmt.Sprintf("%s/%s/%s", n.prefix, driverID, event)
	token := n.cli.Publish(topic, n.qos, false, body)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	n.log.Debugf("notified %s", topic)
	return nil
}

// NotifyEmergencyRoute publishes the emergency-route-created event.
func (n *Notifier) NotifyEmergencyRoute(ctx context.Context, ev events.EmergencyRouteCreated) error {
	return n.publish(ctx, ev.DriverID, "emergency-route-created", ev)
}

// NotifyNearCapacity publishes the near-capacity-warning event.
func (n *Notifier) NotifyNearCapacity(ctx context.Context, ev events.NearCapacityWarning) error {
	return n.publish(ctx, ev.DriverID, "near-capacity-warning", ev)
}

// NotifyRouteCompleted publishes the route-completed event.
func (n *Notifier) NotifyRouteCompleted(ctx context.Context, ev events.RouteCompleted) error {
	return n.publish(ctx, ev.Route.AssignedDriver, "route-completed", ev)
}

// Close disconnects the notifier client.
func (n *Notifier) Close() {
	n.cli.Disconnect(250)
}

// MockNotifier records notifications for tests.
type MockNotifier struct {
	mu        sync.Mutex
	Emergency []events.EmergencyRouteCreated
	Capacity  []events.NearCapacityWarning
	Completed []events.RouteCompleted
	Fail      bool
}

// NewMockNotifier creates an empty MockNotifier.
func NewMockNotifier() *MockNotifier { return &MockNotifier{} }

func (m *MockNotifier) NotifyEmergencyRoute(_ context.Context, ev events.EmergencyRouteCreated) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Emergency = append(m.Emergency, ev)
	return nil
}

func (m *MockNotifier) NotifyNearCapacity(_ context.Context, ev events.NearCapacityWarning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Capacity = append(m.Capacity, ev)
	return nil
}

func (m *MockNotifier) NotifyRouteCompleted(_ context.Context, ev events.RouteCompleted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Completed = append(m.Completed, ev)
	return nil
}
