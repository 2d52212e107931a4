package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/auth"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrEmptyKey = errors.New("key is empty")

// collection is the part of *mongo.Collection the store needs.
type collection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// DBStore is a CredentialStore backed by the credentials collection. Positive
// lookups are cached by key hash for a short time.
type DBStore struct {
	coll    collection
	timeout time.Duration
	cache   *expirable.LRU[string, auth.Permission]
}

func NewDBStore(db *Database, cacheSize int, cacheTTL time.Duration) *DBStore {
	return newDBStore(db.credentials, db.operationTimeout, cacheSize, cacheTTL)
}

func newDBStore(coll collection, timeout time.Duration, cacheSize int, cacheTTL time.Duration) *DBStore {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &DBStore{
		coll:    coll,
		timeout: timeout,
		cache:   expirable.NewLRU[string, auth.Permission](cacheSize, nil, cacheTTL),
	}
}

func wrapErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("unique key conflicts: %w", err)
	}
	return fmt.Errorf("database operation failed: %w", err)
}

func (ds *DBStore) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ds.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ds.timeout)
}

func (ds *DBStore) Lookup(ctx context.Context, key string) (auth.Permission, error) {
	if strings.TrimSpace(key) == "" {
		return auth.PermissionNone, auth.ErrNoKey
	}
	hash := auth.HashKey(key)
	if permission, ok := ds.cache.Get(hash); ok {
		return permission, nil
	}

	ctx, cancel := ds.operationContext(ctx)
	defer cancel()

	var record CredentialRecord
	startTime := time.Now()
	err := ds.coll.FindOne(ctx, bson.D{{Key: "key_hash", Value: hash}}).Decode(&record)
	logger.DebugF("credential query cost: %v", time.Since(startTime))

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return auth.PermissionNone, auth.ErrUnknownKey
		}
		return auth.PermissionNone, wrapErr(err)
	}

	permission, err := auth.ParsePermission(record.Permission)
	if err != nil {
		return auth.PermissionNone, fmt.Errorf("credential %q: %w", record.Name, err)
	}
	ds.cache.Add(hash, permission)
	return permission, nil
}

// SaveCredential creates or replaces the credential for key.
func (ds *DBStore) SaveCredential(ctx context.Context, name, key string, permission auth.Permission) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if permission == auth.PermissionNone {
		return fmt.Errorf("credential %q: permission must be READ or FULL", name)
	}

	ctx, cancel := ds.operationContext(ctx)
	defer cancel()

	hash := auth.HashKey(key)
	record := CredentialRecord{
		KeyHash:    hash,
		Name:       name,
		Permission: permission.String(),
		CreatedAt:  time.Now().UTC(),
	}
	result, err := ds.coll.ReplaceOne(ctx, bson.D{{Key: "key_hash", Value: hash}}, record, options.Replace().SetUpsert(true))
	if err != nil {
		return wrapErr(err)
	}
	ds.cache.Remove(hash)

	logger.InfoF("Credential saved: name=%s, permission=%s, matched=%d, upserted=%v",
		name, permission, result.MatchedCount, result.UpsertedID != nil)
	return nil
}

// DeleteCredential removes the credential for key and reports whether it existed.
func (ds *DBStore) DeleteCredential(ctx context.Context, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, ErrEmptyKey
	}

	ctx, cancel := ds.operationContext(ctx)
	defer cancel()

	hash := auth.HashKey(key)
	result, err := ds.coll.DeleteOne(ctx, bson.D{{Key: "key_hash", Value: hash}})
	ds.cache.Remove(hash)
	if err != nil {
		return false, wrapErr(err)
	}

	logger.InfoF("Credential deleted: deleted=%d", result.DeletedCount)
	return result.DeletedCount > 0, nil
}
