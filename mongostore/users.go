// Package mongostore persists contestauth users in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/code100x/contestauth"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection is the collection used by [Open].
const DefaultCollection = "users"

type userDocument struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"created_at"`
}

func toDocument(u contestauth.User) userDocument {
	return userDocument{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	}
}

func (d userDocument) user() contestauth.User {
	return contestauth.User{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         contestauth.Role(d.Role),
		CreatedAt:    d.CreatedAt,
	}
}

// Users implements contestauth.UserStore on a collection keyed by user id
// with a unique index on email.
type Users struct {
	col *mongo.Collection
}

func NewUsers(col *mongo.Collection) *Users {
	return &Users{col: col}
}

// Open connects to uri, verifies the connection and ensures indexes. The
// caller disconnects the returned client.
func Open(ctx context.Context, uri, database string) (*Users, *mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	store := NewUsers(client.Database(database).Collection(DefaultCollection))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return store, client, nil
}

// EnsureIndexes creates the unique email index. It is idempotent.
func (s *Users) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

func (s *Users) GetUserByEmail(ctx context.Context, email string) (contestauth.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *Users) GetUserByID(ctx context.Context, userID string) (contestauth.User, error) {
	return s.findOne(ctx, bson.M{"_id": userID})
}

// CreateUser relies on the unique index so concurrent inserts for one email
// resolve to a single winner.
func (s *Users) CreateUser(ctx context.Context, user contestauth.User) (contestauth.User, error) {
	if _, err := s.col.InsertOne(ctx, toDocument(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return contestauth.User{}, contestauth.ErrStoreDuplicateEmail
		}
		return contestauth.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *Users) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"password_hash": passwordHash}},
	)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if res.MatchedCount == 0 {
		return contestauth.ErrStoreUserNotFound
	}
	return nil
}

func (s *Users) findOne(ctx context.Context, filter bson.M) (contestauth.User, error) {
	var doc userDocument
	err := s.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return contestauth.User{}, contestauth.ErrStoreUserNotFound
	}
	if err != nil {
		return contestauth.User{}, fmt.Errorf("find user: %w", err)
	}
	return doc.user(), nil
}

var (
	_ contestauth.UserStore           = (*Users)(nil)
	_ contestauth.PasswordHashUpdater = (*Users)(nil)
)
