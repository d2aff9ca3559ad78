package storage

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/llmgate/llmgate/internal/model/chat"
)

const chatHistoryCollection = "chat_history"

// userDocument is one per-user record: a username plus a map of
// conversation id to message log.
type userDocument struct {
	Username      string              `bson:"username"`
	Conversations map[string]chat.Log `bson:"conversations"`
}

// Mongo stores one document per user and updates a single conversation per
// mutation, so flush cost stays proportional to one conversation no matter
// how much total history accumulates. This is the production backend.
type Mongo struct {
	collection *mongo.Collection
}

// NewMongo connects to uri and uses the chat_history collection of database.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrapf(ErrStorage, "connect %s: %v", uri, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errors.Wrapf(ErrStorage, "ping %s: %v", uri, err)
	}
	return &Mongo{collection: client.Database(database).Collection(chatHistoryCollection)}, nil
}

// Load rebuilds the full snapshot from the per-user documents.
func (m *Mongo) Load(ctx context.Context) (Snapshot, error) {
	cursor, err := m.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Wrapf(ErrStorage, "find chat history: %v", err)
	}
	defer cursor.Close(ctx)

	snapshot := Snapshot{}
	for cursor.Next(ctx) {
		var doc userDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrapf(ErrStorage, "decode chat history document: %v", err)
		}
		if doc.Conversations == nil {
			doc.Conversations = map[string]chat.Log{}
		}
		snapshot[doc.Username] = doc.Conversations
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrapf(ErrStorage, "iterate chat history: %v", err)
	}
	return snapshot, nil
}

// Flush upserts every user document. Only used for the shutdown flush and
// by callers that bypass the per-conversation fast path.
func (m *Mongo) Flush(ctx context.Context, snapshot Snapshot) error {
	for username, conversations := range snapshot {
		_, err := m.collection.UpdateOne(ctx,
			bson.M{"username": username},
			bson.M{"$set": bson.M{"conversations": conversations}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return errors.Wrapf(ErrStorage, "flush user %s: %v", username, err)
		}
	}
	return nil
}

// FlushConversation writes one conversation log via a dotted $set update,
// creating the user document when absent.
func (m *Mongo) FlushConversation(ctx context.Context, key chat.Key, log chat.Log) error {
	_, err := m.collection.UpdateOne(ctx,
		bson.M{"username": key.UserID},
		bson.M{"$set": bson.M{"conversations." + key.ConversationID: log}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrapf(ErrStorage, "flush conversation %s/%s: %v", key.UserID, key.ConversationID, err)
	}
	return nil
}
