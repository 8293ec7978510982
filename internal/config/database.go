package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/redisclient"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.uber.org/zap"
)

var (
	// Postgres pool backing the request store
	Postgres *pgxpool.Pool
	// MongoDB database holding the HTTP access trail
	MongoDB *mongo.Database
	// Redis client
	Redis *redisclient.Client
)

var (
	postgresConnectRetries = 30
	postgresRetryDelay     = 2 * time.Second
	postgresPingTimeout    = 2 * time.Second
)

// InitPostgres opens the pgx pool, retrying until the database answers a ping
func InitPostgres(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(AppConfig.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = int32(AppConfig.DatabaseMaxConns)
	cfg.MinConns = int32(AppConfig.DatabaseMinConns)
	cfg.MaxConnIdleTime = 5 * time.Minute

	var lastErr error
	for i := 0; i < postgresConnectRetries; i++ {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			lastErr = err
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, postgresPingTimeout)
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				Postgres = pool
				logging.Logger.Info("connected to PostgreSQL",
					zap.String("host", cfg.ConnConfig.Host),
					zap.String("database", cfg.ConnConfig.Database),
					zap.Int32("max_conns", cfg.MaxConns),
				)
				return nil
			}
			lastErr = err
			pool.Close()
		}

		logging.Logger.Warn("postgres not ready, retrying",
			zap.Int("attempt", i+1),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return fmt.Errorf("db connect cancelled: %w", ctx.Err())
		case <-time.After(postgresRetryDelay):
		}
	}
	return fmt.Errorf("db ping retries exhausted: %w", lastErr)
}

// InitMongoDB initializes the MongoDB connection used by the access trail
func InitMongoDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(AppConfig.MongoURI).
		SetMonitor(otelmongo.NewMonitor()).
		SetMaxPoolSize(20).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("connect mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("ping mongodb: %w", err)
	}

	MongoDB = client.Database(AppConfig.MongoDatabase)

	if err := ensureAccessLogIndexes(ctx, MongoDB.Collection(AppConfig.AccessLogCollection)); err != nil {
		logging.Logger.Error("failed to ensure indexes on startup", zap.Error(err))
	}

	logging.Logger.Info("Connected to MongoDB",
		zap.String("uri", maskMongoURI(AppConfig.MongoURI)),
		zap.String("database", AppConfig.MongoDatabase),
	)
	return nil
}

// InitRedis initializes the Redis connection. A failed ping is logged and
// left to callers, which fall back to in-process state.
func InitRedis() {
	redisClient := redis.NewClient(&redis.Options{
		Addr:         AppConfig.RedisURI,
		Password:     AppConfig.RedisPassword,
		DB:           AppConfig.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	Redis = redisclient.NewClient(redisClient)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Redis.Ping(ctx).Err(); err != nil {
		logging.Logger.Error("failed to connect to Redis",
			zap.String("uri", AppConfig.RedisURI),
			zap.Error(err))
		return
	}

	logging.Logger.Info("connected to Redis",
		zap.String("uri", AppConfig.RedisURI))
}

// CloseConnections releases every initialized backend
func CloseConnections(ctx context.Context) {
	if Postgres != nil {
		Postgres.Close()
	}
	if MongoDB != nil {
		if err := MongoDB.Client().Disconnect(ctx); err != nil {
			logging.Logger.Warn("mongodb disconnect failed", zap.Error(err))
		}
	}
	if Redis != nil {
		if err := Redis.Close(); err != nil {
			logging.Logger.Warn("redis close failed", zap.Error(err))
		}
	}
}

// maskMongoURI masks credentials in a MongoDB URI
func maskMongoURI(uri string) string {
	at := strings.LastIndex(uri, "@")
	if at < 0 {
		return uri
	}
	scheme := "mongodb://"
	if strings.HasPrefix(uri, "mongodb+srv://") {
		scheme = "mongodb+srv://"
	}
	return scheme + "****:****@" + uri[at+1:]
}

// ensureAccessLogIndexes creates the access trail indexes that don't exist yet
func ensureAccessLogIndexes(ctx context.Context, collection *mongo.Collection) error {
	logger := logging.Logger.Named("database")

	cursor, err := collection.Indexes().List(ctx)
	if err != nil {
		logger.Error("failed to list indexes", zap.Error(err))
		return err
	}
	defer cursor.Close(ctx)

	existingIndexes := make(map[string]bool)
	for cursor.Next(ctx) {
		var index bson.M
		if err := cursor.Decode(&index); err != nil {
			continue
		}
		if name, ok := index["name"].(string); ok {
			existingIndexes[name] = true
		}
	}

	var indexesToCreate []mongo.IndexModel
	for _, model := range accessLogIndexModels(AppConfig.AccessLogRetentionDays) {
		if !existingIndexes[*model.Options.Name] {
			indexesToCreate = append(indexesToCreate, model)
		}
	}

	if len(indexesToCreate) == 0 {
		logger.Debug("access log indexes already exist", zap.String("collection", collection.Name()))
		return nil
	}

	_, err = collection.Indexes().CreateMany(ctx, indexesToCreate)
	if err != nil {
		// another instance may have won the race
		if mongo.IsDuplicateKeyError(err) || strings.Contains(err.Error(), "already exists") {
			logger.Info("access log indexes created by another instance", zap.String("collection", collection.Name()))
			return nil
		}
		logger.Error("failed to create access log indexes", zap.Error(err))
		return err
	}

	logger.Info("created access log indexes",
		zap.String("collection", collection.Name()),
		zap.Int("count", len(indexesToCreate)))
	return nil
}

func accessLogIndexModels(retentionDays int) []mongo.IndexModel {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("user_id_1"),
		},
		{
			Keys:    bson.D{{Key: "method", Value: 1}, {Key: "path", Value: 1}},
			Options: options.Index().SetName("method_1_path_1"),
		},
		{
			Keys:    bson.D{{Key: "request_id", Value: 1}},
			Options: options.Index().SetName("request_id_1"),
		},
	}
	if retentionDays > 0 {
		models = append(models, mongo.IndexModel{
			Keys: bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().
				SetName("timestamp_ttl").
				SetExpireAfterSeconds(int32(retentionDays * 24 * 60 * 60)),
		})
	} else {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("timestamp_-1"),
		})
	}
	return models
}
