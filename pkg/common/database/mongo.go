package database

import (
	"context"
	"sync"

	"github.com/synaptica-ai/hospital-analytics/pkg/common/config"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	mongoClient *mongo.Client
	mongoOnce   sync.Once
)

func GetMongo() (*mongo.Client, error) {
	var err error
	mongoOnce.Do(func() {
		cfg := config.Load()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoConnectTimeout)
		defer cancel()

		opts := options.Client().
			ApplyURI(cfg.MongoURI).
			SetConnectTimeout(cfg.MongoConnectTimeout).
			SetServerSelectionTimeout(cfg.MongoConnectTimeout)

		mongoClient, err = mongo.Connect(ctx, opts)
		if err != nil {
			logger.Log.WithError(err).Error("Failed to connect to MongoDB")
			return
		}
		if err = mongoClient.Ping(ctx, nil); err != nil {
			logger.Log.WithError(err).Error("MongoDB ping failed")
			return
		}

		logger.Log.WithField("database", cfg.MongoDatabase).Info("Connected to MongoDB")
	})

	return mongoClient, err
}

func CloseMongo(ctx context.Context) error {
	if mongoClient != nil {
		return mongoClient.Disconnect(ctx)
	}
	return nil
}
