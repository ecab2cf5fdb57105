// Package mongostore stores canonical records in a MongoDB collection with one
// document per (symbol, fetchedAt) and an updateCount incremented on every write.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"lunarcollector/internal/record"
	"lunarcollector/internal/store"
)

// Defaults for Config.
const (
	DefaultURI        = "mongodb://localhost:27017/crypto_db"
	DefaultDatabase   = "crypto_db"
	DefaultCollection = "lunarcrush_data"
)

// UniqueIndexName names the (symbol, fetchedAt) index.
const UniqueIndexName = "symbol_1_fetchedAt_1"

// codeNamespaceExists is returned by create when another writer won the race.
const codeNamespaceExists = 48

type Config struct {
	URI string
	// Database overrides the database named in URI.
	Database   string
	Collection string
	// DayZone bounds ForDay lookups; nil means UTC.
	DayZone *time.Location
}

// Store is a lazily connected MongoDB implementation of store.Store.
type Store struct {
	cfg Config
	log logrus.FieldLogger

	mu     sync.Mutex
	client *mongo.Client
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

// New validates cfg and returns a Store. No connection is made until first use.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.URI == "" {
		cfg.URI = DefaultURI
	}
	if cfg.Database == "" {
		cs, err := connstring.ParseAndValidate(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("parse mongo url: %w", err)
		}
		cfg.Database = cs.Database
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.DayZone == nil {
		cfg.DayZone = time.UTC
	}
	s := &Store{cfg: cfg, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// connect returns the shared client, dialing it on first use.
func (s *Store) connect(ctx context.Context) (*mongo.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.cfg.URI))
	if err != nil {
		return nil, &store.Error{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, &store.Error{Op: "connect", Err: err}
	}
	s.log.WithFields(logrus.Fields{"database": s.cfg.Database, "collection": s.cfg.Collection}).Debug("connected to mongodb")
	s.client = client
	return client, nil
}

func (s *Store) collection(ctx context.Context) (*mongo.Collection, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	return client.Database(s.cfg.Database).Collection(s.cfg.Collection), nil
}

func (s *Store) EnsureReady(ctx context.Context) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	db := client.Database(s.cfg.Database)

	names, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: s.cfg.Collection}})
	if err != nil {
		return &store.Error{Op: "list collections", Err: err}
	}
	if len(names) > 0 {
		return nil
	}

	if err := db.CreateCollection(ctx, s.cfg.Collection); err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == codeNamespaceExists {
			return nil
		}
		return &store.Error{Op: "create collection", Err: err}
	}

	_, err = db.Collection(s.cfg.Collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "symbol", Value: 1}, {Key: "fetchedAt", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(UniqueIndexName),
	})
	if err != nil {
		return &store.Error{Op: "create index", Err: err}
	}
	s.log.WithField("collection", s.cfg.Collection).Info("created collection with unique symbol/fetchedAt index")
	return nil
}

func (s *Store) UpsertBatch(ctx context.Context, recs []record.Record) (store.UpsertResult, error) {
	res := store.UpsertResult{Attempted: len(recs)}
	if len(recs) == 0 {
		return res, nil
	}
	coll, err := s.collection(ctx)
	if err != nil {
		return res, err
	}

	models := make([]mongo.WriteModel, 0, len(recs))
	for _, r := range recs {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "symbol", Value: r.Symbol}, {Key: "fetchedAt", Value: r.FetchedAt}}).
			SetUpdate(bson.D{
				{Key: "$set", Value: setDocument(r)},
				{Key: "$inc", Value: bson.D{{Key: "updateCount", Value: int32(1)}}},
			}).
			SetUpsert(true))
	}

	out, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if out != nil {
		res.Upserted = int(out.UpsertedCount)
		res.Modified = int(out.ModifiedCount)
	}
	if err != nil {
		serr := &store.Error{Op: "upsert", Err: err, Upserted: res.Upserted, Modified: res.Modified}
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) {
			serr.Failed = len(bwe.WriteErrors)
			if serr.Failed == 0 && bwe.WriteConcernError != nil {
				serr.Failed = len(recs) - res.Upserted - res.Modified
			}
		}
		return res, serr
	}
	return res, nil
}

// setDocument is the $set half of an upsert. updateCount is left to $inc.
func setDocument(r record.Record) bson.M {
	set := make(bson.M, len(r.Metrics)+3)
	for k, v := range r.Metrics {
		set[k] = v
	}
	delete(set, "_id")
	delete(set, "updateCount")
	set["symbol"] = r.Symbol
	set["fetchedAt"] = r.FetchedAt
	set["updateTimestamp"] = r.UpdateTimestamp
	return set
}

// document is the stored layout: fixed keys plus every metric at top level.
type document struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	Symbol          string             `bson:"symbol"`
	FetchedAt       time.Time          `bson:"fetchedAt"`
	UpdateTimestamp time.Time          `bson:"updateTimestamp"`
	UpdateCount     int64              `bson:"updateCount"`
	Metrics         map[string]any     `bson:",inline"`
}

func (d document) record() record.Record {
	return record.Record{
		Symbol:          d.Symbol,
		FetchedAt:       d.FetchedAt,
		UpdateTimestamp: d.UpdateTimestamp,
		UpdateCount:     d.UpdateCount,
		Metrics:         d.Metrics,
	}
}

func (s *Store) findOne(ctx context.Context, op string, filter bson.D, opts ...*options.FindOneOptions) (record.Record, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return record.Record{}, err
	}
	var doc document
	if err := coll.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return record.Record{}, store.ErrNotFound
		}
		return record.Record{}, &store.Error{Op: op, Err: err}
	}
	return doc.record(), nil
}

func (s *Store) LatestFor(ctx context.Context, symbol string) (record.Record, error) {
	return s.findOne(ctx, "latest",
		bson.D{{Key: "symbol", Value: symbol}},
		options.FindOne().SetSort(bson.D{{Key: "fetchedAt", Value: -1}}),
	)
}

func (s *Store) ForDay(ctx context.Context, symbol string, day time.Time) (record.Record, error) {
	start, end := store.DayRange(day, s.cfg.DayZone)
	return s.findOne(ctx, "for day", bson.D{
		{Key: "symbol", Value: symbol},
		{Key: "fetchedAt", Value: bson.D{{Key: "$gte", Value: start}, {Key: "$lt", Value: end}}},
	})
}

// Close disconnects. It is a no-op when never connected.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	if err != nil {
		return &store.Error{Op: "close", Err: err}
	}
	return nil
}

var _ store.Store = (*Store)(nil)
