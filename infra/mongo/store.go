// Package mongo adapts the persistence boundary to a MongoDB document
// store. Documents are keyed by entity id; enums travel as strings so the
// collections stay readable.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/smartbin/fleetops/core/fault"
	"github.com/smartbin/fleetops/core/model"
)

// Config defines the MongoDB connection settings.
type Config struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
	Enabled  bool   `json:"enabled"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Database == "" {
		c.Database = "fleetops"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Enabled && c.URI == "" {
		return fmt.Errorf("mongo uri is required when mongo is enabled")
	}
	return nil
}

// Store implements the storage interfaces over three collections.
type Store struct {
	client    *mongo.Client
	bins      *mongo.Collection
	routes    *mongo.Collection
	disposals *mongo.Collection
}

// Connect dials the server, verifies the connection and returns the store.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	db := client.Database(cfg.Database)
	return &Store{
		client:    client,
		bins:      db.Collection("bins"),
		routes:    db.Collection("routes"),
		disposals: db.Collection("disposals"),
	}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type binDoc struct {
	ID                  string            `bson:"_id"`
	FillLevel           int               `bson:"fill_level"`
	Status              string            `bson:"status"`
	Location            string            `bson:"location,omitempty"`
	Coordinates         model.Coordinates `bson:"coordinates"`
	LastPickup          time.Time         `bson:"last_pickup,omitempty"`
	NextScheduledPickup time.Time         `bson:"next_scheduled_pickup,omitempty"`
}

func toBinDoc(b model.Bin) binDoc {
	return binDoc{
		ID:                  b.ID,
		FillLevel:           b.FillLevel,
		Status:              b.Status.String(),
		Location:            b.Location,
		Coordinates:         b.Coordinates,
		LastPickup:          b.LastPickup,
		NextScheduledPickup: b.NextScheduledPickup,
	}
}

func (d binDoc) toModel() (model.Bin, error) {
	status, err := model.ParseBinStatus(d.Status)
	if err != nil {
		return model.Bin{}, err
	}
	return model.Bin{
		ID:                  d.ID,
		FillLevel:           d.FillLevel,
		Status:              status,
		Location:            d.Location,
		Coordinates:         d.Coordinates,
		LastPickup:          d.LastPickup,
		NextScheduledPickup: d.NextScheduledPickup,
	}, nil
}

func (s *Store) GetBin(ctx context.Context, id string) (model.Bin, error) {
	var doc binDoc
	err := s.bins.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Bin{}, fault.New(fault.NotFound, "bin", id, "get")
	}
	if err != nil {
		return model.Bin{}, fault.Wrap("bin", id, "get", err)
	}
	b, err := doc.toModel()
	if err != nil {
		return model.Bin{}, fault.Wrap("bin", id, "decode", err)
	}
	return b, nil
}

func (s *Store) PutBin(ctx context.Context, bin model.Bin) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.bins.ReplaceOne(ctx, bson.M{"_id": bin.ID}, toBinDoc(bin), opts); err != nil {
		return fault.Wrap("bin", bin.ID, "put", err)
	}
	return nil
}

func (s *Store) ListBins(ctx context.Context) ([]model.Bin, error) {
	cur, err := s.bins.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, fault.Wrap("bin", "", "list", err)
	}
	defer func() { _ = cur.Close(ctx) }()
	var res []model.Bin
	for cur.Next(ctx) {
		var doc binDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fault.Wrap("bin", "", "decode", err)
		}
		b, err := doc.toModel()
		if err != nil {
			return nil, fault.Wrap("bin", doc.ID, "decode", err)
		}
		res = append(res, b)
	}
	return res, cur.Err()
}

type stopDoc struct {
	BinID       string    `bson:"bin_id"`
	Order       int       `bson:"order"`
	OffsetMin   int       `bson:"estimated_offset_minutes"`
	Status      string    `bson:"status"`
	CollectedAt time.Time `bson:"collected_at,omitempty"`
}

type routeDoc struct {
	ID             string    `bson:"_id"`
	Type           string    `bson:"type"`
	AssignedDriver string    `bson:"assigned_driver,omitempty"`
	Status         string    `bson:"status"`
	Stops          []stopDoc `bson:"stops"`
	DurationMin    int       `bson:"estimated_duration_minutes"`
	CreatedAt      time.Time `bson:"created_at"`
	StartedAt      time.Time `bson:"started_at,omitempty"`
	CompletedAt    time.Time `bson:"completed_at,omitempty"`
}

func toRouteDoc(r model.Route) routeDoc {
	doc := routeDoc{
		ID:             r.ID,
		Type:           r.Type.String(),
		AssignedDriver: r.AssignedDriver,
		Status:         r.Status.String(),
		DurationMin:    r.EstimatedDuration,
		CreatedAt:      r.CreatedAt,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
	}
	for _, st := range r.Stops {
		doc.Stops = append(doc.Stops, stopDoc{
			BinID:       st.BinID,
			Order:       st.Order,
			OffsetMin:   st.EstimatedOffsetMinute,
			Status:      st.Status.String(),
			CollectedAt: st.CollectedAt,
		})
	}
	return doc
}

func parseRouteStatus(s string) (model.RouteStatus, error) {
	switch s {
	case "unassigned":
		return model.RouteUnassigned, nil
	case "assigned":
		return model.RouteAssigned, nil
	case "in-progress":
		return model.RouteInProgress, nil
	case "completed":
		return model.RouteCompleted, nil
	case "cancelled":
		return model.RouteCancelled, nil
	default:
		return model.RouteUnassigned, fmt.Errorf("unknown route status %q", s)
	}
}

func (d routeDoc) toModel() (model.Route, error) {
	typ, err := model.ParseRouteType(d.Type)
	if err != nil {
		return model.Route{}, err
	}
	status, err := parseRouteStatus(d.Status)
	if err != nil {
		return model.Route{}, err
	}
	r := model.Route{
		ID:                d.ID,
		Type:              typ,
		AssignedDriver:    d.AssignedDriver,
		Status:            status,
		EstimatedDuration: d.DurationMin,
		CreatedAt:         d.CreatedAt,
		StartedAt:         d.StartedAt,
		CompletedAt:       d.CompletedAt,
	}
	for _, st := range d.Stops {
		stopStatus := model.StopPending
		if st.Status == "collected" {
			stopStatus = model.StopCollected
		}
		r.Stops = append(r.Stops, model.RouteStop{
			BinID:                 st.BinID,
			Order:                 st.Order,
			EstimatedOffsetMinute: st.OffsetMin,
			Status:                stopStatus,
			CollectedAt:           st.CollectedAt,
		})
	}
	return r, nil
}

func (s *Store) GetRoute(ctx context.Context, id string) (model.Route, error) {
	var doc routeDoc
	err := s.routes.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Route{}, fault.New(fault.NotFound, "route", id, "get")
	}
	if err != nil {
		return model.Route{}, fault.Wrap("route", id, "get", err)
	}
	r, err := doc.toModel()
	if err != nil {
		return model.Route{}, fault.Wrap("route", id, "decode", err)
	}
	return r, nil
}

func (s *Store) PutRoute(ctx context.Context, route model.Route) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.routes.ReplaceOne(ctx, bson.M{"_id": route.ID}, toRouteDoc(route), opts); err != nil {
		return fault.Wrap("route", route.ID, "put", err)
	}
	return nil
}

func (s *Store) ListActiveRoutes(ctx context.Context, driverID string) ([]model.Route, error) {
	filter := bson.M{"status": bson.M{"$in": []string{"assigned", "in-progress"}}}
	if driverID != "" {
		filter["assigned_driver"] = driverID
	}
	cur, err := s.routes.Find(ctx, filter, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, fault.Wrap("route", "", "list active", err)
	}
	defer func() { _ = cur.Close(ctx) }()
	var res []model.Route
	for cur.Next(ctx) {
		var doc routeDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fault.Wrap("route", "", "decode", err)
		}
		r, err := doc.toModel()
		if err != nil {
			return nil, fault.Wrap("route", doc.ID, "decode", err)
		}
		res = append(res, r)
	}
	return res, cur.Err()
}

func (s *Store) AppendDisposal(ctx context.Context, rec model.DisposalRecord) error {
	if _, err := s.disposals.InsertOne(ctx, rec); err != nil {
		return fault.Wrap("disposal", rec.ID, "append", err)
	}
	return nil
}

func (s *Store) ListDisposals(ctx context.Context, driverID string) ([]model.DisposalRecord, error) {
	filter := bson.M{}
	if driverID != "" {
		filter["driver_id"] = driverID
	}
	cur, err := s.disposals.Find(ctx, filter, options.Find().SetSort(bson.M{"timestamp": 1}))
	if err != nil {
		return nil, fault.Wrap("disposal", "", "list", err)
	}
	defer func() { _ = cur.Close(ctx) }()
	var res []model.DisposalRecord
	if err := cur.All(ctx, &res); err != nil {
		return nil, fault.Wrap("disposal", "", "decode", err)
	}
	return res, nil
}
