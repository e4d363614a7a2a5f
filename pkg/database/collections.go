package database

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	TransferTimesCollection = "transfer_times"
	SessionsCollection      = "session_history"
)

func createIndexes() {
	createTransferTimesIndexes()
	createSessionHistoryIndexes()
}

func createTransferTimesIndexes() {
	transferTimesCollection := GetCollection(TransferTimesCollection)
	_, err := transferTimesCollection.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "station", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}, options.CreateIndexes())
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}

func createSessionHistoryIndexes() {
	sessionHistoryCollection := GetCollection(SessionsCollection)
	_, err := sessionHistoryCollection.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "finisheddatetime", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(24 * 3600), // Expire after 1 day
		},
	}, options.CreateIndexes())
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}
