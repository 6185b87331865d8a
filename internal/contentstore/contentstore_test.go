package contentstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/desoul99/project-fish/internal/scanmodel"
)

type fakeInserter struct {
	docs []any
}

func (f *fakeInserter) InsertOne(ctx context.Context, document any) error {
	f.docs = append(f.docs, document)
	return nil
}

func newTestStore(t *testing.T) (*MongoRedisStore, *fakeInserter, *fakeInserter) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	bodies := &fakeInserter{}
	certs := &fakeInserter{}
	scans := &fakeInserter{}

	store := NewMongoRedisStore(scans, bodies, certs, NewRedisRefcount(client), NewRedisRefcount(client))
	return store, bodies, certs
}

func TestMongoRedisStore_PutBody_DedupesAndRefcounts(t *testing.T) {
	store, bodies, _ := newTestStore(t)
	ctx := context.Background()

	doc := scanmodel.BodyDocument{SHA256Hash: "abc123", Body: []byte("hello")}

	require.NoError(t, store.PutBody(ctx, doc))
	require.NoError(t, store.PutBody(ctx, doc))

	require.Len(t, bodies.docs, 1, "second PutBody of the same hash must not insert again")

	refs, err := store.contentRefs.(*RedisRefcount).client.Get(ctx, "abc123").Int()
	require.NoError(t, err)
	require.Equal(t, 2, refs)
}

func TestMongoRedisStore_PutCertificate_DedupesAndRefcounts(t *testing.T) {
	store, _, certs := newTestStore(t)
	ctx := context.Background()

	doc := scanmodel.CertificateDocument{SHA256SecurityDetails: "cert123"}

	require.NoError(t, store.PutCertificate(ctx, doc))
	require.NoError(t, store.PutCertificate(ctx, doc))

	require.Len(t, certs.docs, 1)

	refs, err := store.certificateRefs.(*RedisRefcount).client.Get(ctx, "cert123").Int()
	require.NoError(t, err)
	require.Equal(t, 2, refs)
}

func TestMongoRedisStore_PutBody_DistinctHashesBothInserted(t *testing.T) {
	store, bodies, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutBody(ctx, scanmodel.BodyDocument{SHA256Hash: "hash-a"}))
	require.NoError(t, store.PutBody(ctx, scanmodel.BodyDocument{SHA256Hash: "hash-b"}))

	require.Len(t, bodies.docs, 2)
}
