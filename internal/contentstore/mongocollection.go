package contentstore

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoCollection adapts a *mongo.Collection to DocumentInserter.
type MongoCollection struct {
	Collection *mongo.Collection
}

func (c MongoCollection) InsertOne(ctx context.Context, document any) error {
	_, err := c.Collection.InsertOne(ctx, document)
	return err
}
