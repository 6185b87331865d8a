// Package contentstore persists scan records and deduplicates bodies and
// certificates by content hash, using Redis as the existence/refcount index
// and MongoDB as the document store (spec §4.6).
package contentstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/desoul99/project-fish/internal/scanmodel"
)

// ContentStore is the persistence boundary DataProcessor's output crosses.
type ContentStore interface {
	PutScan(ctx context.Context, record scanmodel.ScanRecord) error
	PutBody(ctx context.Context, doc scanmodel.BodyDocument) error
	PutCertificate(ctx context.Context, doc scanmodel.CertificateDocument) error
}

// RedisIncrementer is the subset of a Redis client MongoRedisStore needs:
// existence check and atomic refcount increment.
type RedisIncrementer interface {
	Exists(ctx context.Context, key string) (bool, error)
	Incr(ctx context.Context, key string) error
}

// DocumentInserter is the subset of a Mongo collection MongoRedisStore
// needs. Satisfied by *mongo.Collection; kept as an interface so the dedup
// logic can be exercised in tests without a live Mongo connection.
type DocumentInserter interface {
	InsertOne(ctx context.Context, document any) error
}

// MongoRedisStore is the concrete ContentStore: MongoDB collections for
// scans/bodies/certificates, Redis for the refcount index that decides
// whether a body or certificate needs inserting at all (spec §4.6 /
// original_source Database.insert_content).
type MongoRedisStore struct {
	requestCollection     DocumentInserter
	contentCollection     DocumentInserter
	certificateCollection DocumentInserter

	contentRefs     RedisIncrementer
	certificateRefs RedisIncrementer
}

// NewMongoRedisStore wires a MongoRedisStore from already-connected Mongo
// collections and Redis clients (one logical database per refcount
// namespace, per spec §6's `content_database`/`certificate_database`
// config split).
func NewMongoRedisStore(requests, content, certificates DocumentInserter, contentRefs, certificateRefs RedisIncrementer) *MongoRedisStore {
	return &MongoRedisStore{
		requestCollection:     requests,
		contentCollection:     content,
		certificateCollection: certificates,
		contentRefs:           contentRefs,
		certificateRefs:       certificateRefs,
	}
}

// PutScan write-once inserts a ScanRecord keyed by scan_id.
func (s *MongoRedisStore) PutScan(ctx context.Context, record scanmodel.ScanRecord) error {
	err := s.requestCollection.InsertOne(ctx, record)
	if isDuplicateKeyError(err) {
		return nil
	}
	return err
}

// PutBody inserts into the content collection only if the hash has not
// been seen before, then always increments its refcount. The
// exists-then-insert race is closed by the collection's unique index on
// sha256_hash: a duplicate-key error from a concurrent winner is swallowed
// (spec §4.6, §7 "Persistence duplicate-key").
func (s *MongoRedisStore) PutBody(ctx context.Context, doc scanmodel.BodyDocument) error {
	exists, err := s.contentRefs.Exists(ctx, doc.SHA256Hash)
	if err != nil {
		return fmt.Errorf("contentstore: check body refcount: %w", err)
	}
	if !exists {
		if err := s.contentCollection.InsertOne(ctx, doc); err != nil && !isDuplicateKeyError(err) {
			return fmt.Errorf("contentstore: insert body: %w", err)
		}
	}
	return s.contentRefs.Incr(ctx, doc.SHA256Hash)
}

// PutCertificate mirrors PutBody for the certificate collection, keyed by
// sha256_securityDetails.
func (s *MongoRedisStore) PutCertificate(ctx context.Context, doc scanmodel.CertificateDocument) error {
	exists, err := s.certificateRefs.Exists(ctx, doc.SHA256SecurityDetails)
	if err != nil {
		return fmt.Errorf("contentstore: check certificate refcount: %w", err)
	}
	if !exists {
		if err := s.certificateCollection.InsertOne(ctx, doc); err != nil && !isDuplicateKeyError(err) {
			return fmt.Errorf("contentstore: insert certificate: %w", err)
		}
	}
	return s.certificateRefs.Incr(ctx, doc.SHA256SecurityDetails)
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	return false
}
