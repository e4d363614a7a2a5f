package transfertimes

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/stations"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const writeTimeout = 10 * time.Second

type TransferTime struct {
	Station              string    `bson:"station"`
	TotalSeconds         float64   `bson:"totalseconds"`
	Samples              int       `bson:"samples"`
	ModificationDateTime time.Time `bson:"modificationdatetime"`
}

func (t TransferTime) Average() time.Duration {
	if t.Samples <= 0 {
		return 0
	}

	return time.Duration(t.TotalSeconds / float64(t.Samples) * float64(time.Second))
}

// MongoStore keeps a running average per station in a Mongo collection.
type MongoStore struct {
	collection *mongo.Collection
	inflight   sync.WaitGroup
}

func NewMongoStore(collection *mongo.Collection) *MongoStore {
	return &MongoStore{collection: collection}
}

func (m *MongoStore) Get(ctx context.Context, station string) time.Duration {
	key := stations.Normalize(station)
	if key == "" {
		return DefaultPlatformTime
	}

	var transferTime TransferTime
	err := m.collection.FindOne(ctx, bson.M{"station": key}).Decode(&transferTime)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			log.Warn().Err(err).Str("station", key).Msg("Failed to read transfer time")
		}
		return DefaultPlatformTime
	}

	if average := transferTime.Average(); average > 0 {
		return average
	}

	return DefaultPlatformTime
}

func (m *MongoStore) Record(station string, duration time.Duration) {
	key := stations.Normalize(station)
	if key == "" || duration <= 0 {
		return
	}

	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		update := bson.M{
			"$inc": bson.M{
				"totalseconds": duration.Seconds(),
				"samples":      1,
			},
			"$set": bson.M{
				"modificationdatetime": time.Now(),
			},
		}

		_, err := m.collection.UpdateOne(ctx, bson.M{"station": key}, update, options.Update().SetUpsert(true))
		if err != nil {
			log.Warn().Err(err).Str("station", key).Dur("duration", duration).Msg("Failed to record transfer time")
		}
	}()
}

// Wait blocks until every pending Record has been written or has failed.
func (m *MongoStore) Wait() {
	m.inflight.Wait()
}
