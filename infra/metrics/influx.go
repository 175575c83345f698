package metrics

import (
	"context"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/smartbin/fleetops/core/metrics"
	"github.com/smartbin/fleetops/core/model"
	"github.com/smartbin/fleetops/infra/logger"
)

// InfluxSink writes collection events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails, so a missing Influx never blocks the
// engine.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCollection writes the collection as a point.
func (s *InfluxSink) RecordCollection(ev coremetrics.CollectionEvent) error {
	p := write.NewPointWithMeasurement("bin_collection").
		AddTag("route_id", ev.RouteID).
		AddTag("route_type", ev.RouteType.String()).
		AddTag("driver_id", ev.DriverID).
		AddTag("bin_id", ev.BinID).
		AddField("weight_kg", ev.WeightKg).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordRouteEvent writes the lifecycle milestone as a point.
func (s *InfluxSink) RecordRouteEvent(ev coremetrics.RouteEvent) error {
	p := write.NewPointWithMeasurement("route_event").
		AddTag("route_id", ev.RouteID).
		AddTag("route_type", ev.RouteType.String()).
		AddTag("driver_id", ev.DriverID).
		AddTag("milestone", ev.Milestone).
		AddField("stop_count", ev.StopCount).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDisposal writes the disposal record as a point.
func (s *InfluxSink) RecordDisposal(rec model.DisposalRecord) error {
	p := write.NewPointWithMeasurement("disposal").
		AddTag("driver_id", rec.DriverID).
		AddTag("vehicle_id", rec.VehicleID).
		AddTag("facility", rec.Facility).
		AddField("weight_kg", rec.WeightKg).
		SetTime(rec.Timestamp)
	return s.write(p)
}

// RecordUtilization writes the utilization gauge as a point.
func (s *InfluxSink) RecordUtilization(vehicleID string, utilization float64) error {
	p := write.NewPointWithMeasurement("vehicle_utilization").
		AddTag("vehicle_id", vehicleID).
		AddField("utilization", utilization).
		SetTime(time.Now())
	return s.write(p)
}

// Close shuts the underlying client down.
func (s *InfluxSink) Close() {
	s.client.Close()
}
