package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
)

// Summary is what is kept of a session once it has ended.
type Summary struct {
	ID              string    `bson:"id"`
	StopID          string    `bson:"stopid"`
	StationName     string    `bson:"stationname"`
	LineID          string    `bson:"lineid"`
	Destination     string    `bson:"destination"`
	ExpectedArrival time.Time `bson:"expectedarrival"`

	FinalStatus string  `bson:"finalstatus"`
	FinalPhase  string  `bson:"finalphase"`
	Fraction    float64 `bson:"fraction"`

	CreationDateTime time.Time `bson:"creationdatetime"`
	FinishedDateTime time.Time `bson:"finisheddatetime"`
}

type HistoryRecorder interface {
	Record(summary Summary)
}

type MongoHistory struct {
	collection *mongo.Collection
	inflight   sync.WaitGroup
}

func NewMongoHistory(collection *mongo.Collection) *MongoHistory {
	return &MongoHistory{collection: collection}
}

// Record inserts the summary in the background.
func (h *MongoHistory) Record(summary Summary) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := h.collection.InsertOne(ctx, summary); err != nil {
			log.Warn().Err(err).Str("session", summary.ID).Msg("Failed to record session history")
		}
	}()
}

func (h *MongoHistory) Wait() {
	h.inflight.Wait()
}
