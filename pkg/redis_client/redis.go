package redis_client

import (
	"context"
	"strconv"

	"github.com/adjust/rmq/v5"
	"github.com/redis/go-redis/v9"
	"github.com/travigo/catchtrain/pkg/util"
)

var Client *redis.Client
var QueueConnection rmq.Connection

const defaultConnectionAddress = "localhost:6379"
const defaultConnectionPassword = ""
const defaultDatabase = 0

const connectionTag = "catchtrain"

func Connect() error {
	address := defaultConnectionAddress
	password := defaultConnectionPassword
	database := defaultDatabase

	env := util.GetEnvironmentVariables()

	if env["CATCHTRAIN_REDIS_ADDRESS"] != "" {
		address = env["CATCHTRAIN_REDIS_ADDRESS"]
	}

	if env["CATCHTRAIN_REDIS_PASSWORD"] != "" {
		password = env["CATCHTRAIN_REDIS_PASSWORD"]
	}

	if env["CATCHTRAIN_REDIS_DATABASE"] != "" {
		if n, err := strconv.Atoi(env["CATCHTRAIN_REDIS_DATABASE"]); err == nil {
			database = n
		} else {
			return err
		}
	}

	Client = redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       database,
	})

	if err := Client.Ping(context.Background()).Err(); err != nil {
		return err
	}

	return OpenQueue(Client, nil)
}

// OpenQueue opens the rmq connection on an existing client. errChan receives
// background errors from rmq and may be nil.
func OpenQueue(client *redis.Client, errChan chan<- error) error {
	var err error
	QueueConnection, err = rmq.OpenConnectionWithRedisClient(connectionTag, client, errChan)

	return err
}

// Configured reports whether a Redis address has been set in the environment.
func Configured() bool {
	return util.GetEnvironmentVariables()["CATCHTRAIN_REDIS_ADDRESS"] != ""
}
