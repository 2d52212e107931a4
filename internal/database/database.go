package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	c "github.com/life-stream-dev/life-stream-go-jtp/internal/config"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Database is a connected Mongo client plus the collections the server uses.
type Database struct {
	client           *mongo.Client
	db               *mongo.Database
	credentials      *mongo.Collection
	operationTimeout time.Duration
}

// Invoke disconnects the client. It is registered with the cleaner.
func (d *Database) Invoke(ctx context.Context) error {
	logger.InfoF("Closing database connection")
	ctx, cancel := context.WithTimeout(ctx, d.operationTimeout)
	defer cancel()
	return d.client.Disconnect(ctx)
}

func (d *Database) OperationTimeout() time.Duration {
	return d.operationTimeout
}

func connectionURL(config c.DatabaseConfig) string {
	// 编码特殊字符
	encodedUser := url.QueryEscape(config.Username)
	encodedPass := url.QueryEscape(config.Password)
	if encodedUser == "" {
		return fmt.Sprintf("mongodb://%s:%d/", config.Host, config.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
		encodedUser, encodedPass,
		config.Host,
		config.Port,
	)
}

func clientOptions(appName string, config c.DatabaseConfig) *options.ClientOptions {
	clientOptions := options.Client().ApplyURI(connectionURL(config)).SetAppName(appName)
	// 连接池配置
	clientOptions.SetMinPoolSize(config.MinPoolSize)
	clientOptions.SetMaxPoolSize(config.MaxPoolSize)
	clientOptions.SetMaxConnIdleTime(utils.MustParseStringTime(config.ConnectIdleTimeout))
	// 超时限制
	clientOptions.SetConnectTimeout(utils.MustParseStringTime(config.ConnectTimeout))
	clientOptions.SetSocketTimeout(utils.MustParseStringTime(config.SocketTimeout))
	// 心跳包
	if heartbeat := utils.MustParseStringTime(config.Heartbeat); heartbeat > 0 {
		clientOptions.SetHeartbeatInterval(heartbeat)
	}
	if config.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	// 连接池监控
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created: %s#%d", evt.Address, evt.ConnectionID)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed: %s#%d (%s)", evt.Address, evt.ConnectionID, evt.Reason)
			}
		},
	})
	return clientOptions
}

// Connect dials Mongo, verifies the connection and makes sure the credential
// index exists.
func Connect(ctx context.Context, config *c.Config) (*Database, error) {
	logger.DebugF("Connecting to database...")
	dbConfig := config.Database

	operationTimeout := dbConfig.OperationTimeoutDuration()
	if operationTimeout <= 0 {
		operationTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions(config.AppName, dbConfig))
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %w", err)
	}

	// 验证连接
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %w", err)
	}

	db := client.Database(dbConfig.Database)
	credentials := db.Collection(CredentialCollectionName)

	_, err = credentials.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key_hash", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(keyHashIndexName),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while creating database indexes: %w", err)
	}

	logger.InfoF("Connected to database %s at %s:%d", dbConfig.Database, dbConfig.Host, dbConfig.Port)
	return &Database{
		client:           client,
		db:               db,
		credentials:      credentials,
		operationTimeout: operationTimeout,
	}, nil
}
