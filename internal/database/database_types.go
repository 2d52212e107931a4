package database

import "time"

const (
	CredentialCollectionName = "credentials"
	keyHashIndexName         = "credentials_key_hash_unique"

	defaultCacheSize = 256
	defaultCacheTTL  = time.Minute
)

// CredentialRecord is one pre-shared key. Only the SHA-256 of the key is stored.
type CredentialRecord struct {
	KeyHash    string    `bson:"key_hash"`
	Name       string    `bson:"name"`
	Permission string    `bson:"permission"`
	CreatedAt  time.Time `bson:"created_at"`
}
