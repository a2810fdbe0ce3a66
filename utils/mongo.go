package utils

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	mongoClient *mongo.Client
	database    *mongo.Database
	mongoMu     sync.Mutex
)

// InitMongo connects to MongoDB for the raw event archive. The archive is
// optional; callers should treat a nil collection as "archiving disabled".
func InitMongo(mongoURI, databaseName string) error {
	clientOptions := options.Client().ApplyURI(mongoURI).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		if closeErr := client.Disconnect(ctx); closeErr != nil {
			log.Printf("Error disconnecting failed client: %v", closeErr)
		}
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoMu.Lock()
	mongoClient = client
	database = client.Database(databaseName)
	mongoMu.Unlock()

	log.Printf("[MONGO] Connected to database: %s", databaseName)
	return nil
}

// GetCollection returns the named collection, or nil when Mongo is not
// configured for this deployment.
func GetCollection(collName string) *mongo.Collection {
	mongoMu.Lock()
	defer mongoMu.Unlock()
	if database == nil {
		return nil
	}
	return database.Collection(collName)
}

// CloseMongo disconnects the archive client.
func CloseMongo() {
	mongoMu.Lock()
	defer mongoMu.Unlock()
	if mongoClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mongoClient.Disconnect(ctx); err != nil {
		log.Printf("[MONGO] Error disconnecting: %v", err)
	}
	mongoClient = nil
	database = nil
}
