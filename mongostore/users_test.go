package mongostore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/code100x/contestauth"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestUsers(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mt.Run("find by email", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "u1"},
			{Key: "email", Value: "a@x.com"},
			{Key: "password_hash", Value: "$argon2id$..."},
			{Key: "role", Value: "Admin"},
			{Key: "created_at", Value: created},
		}))

		u, err := NewUsers(mt.Coll).GetUserByEmail(ctx, "a@x.com")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if u.ID != "u1" || u.Role != contestauth.RoleAdmin || !u.CreatedAt.Equal(created) {
			t.Fatalf("decoded %+v", u)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := NewUsers(mt.Coll).GetUserByID(ctx, "missing")
		if !errors.Is(err, contestauth.ErrStoreUserNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	mt.Run("create", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		u := contestauth.User{ID: "u2", Email: "b@x.com", Role: contestauth.RoleUser, CreatedAt: created}
		got, err := NewUsers(mt.Coll).CreateUser(ctx, u)
		if err != nil || got != u {
			t.Fatalf("create: %+v %v", got, err)
		}
	})

	mt.Run("duplicate email", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: users index: email_unique",
		}))

		_, err := NewUsers(mt.Coll).CreateUser(ctx, contestauth.User{ID: "u3", Email: "b@x.com"})
		if !errors.Is(err, contestauth.ErrStoreDuplicateEmail) {
			t.Fatalf("expected duplicate, got %v", err)
		}
	})

	mt.Run("update missing user", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 0}, {Key: "nModified", Value: 0}})

		err := NewUsers(mt.Coll).UpdatePasswordHash(ctx, "ghost", "h")
		if !errors.Is(err, contestauth.ErrStoreUserNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	mt.Run("update", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}, {Key: "nModified", Value: 1}})

		if err := NewUsers(mt.Coll).UpdatePasswordHash(ctx, "u1", "h2"); err != nil {
			t.Fatalf("update: %v", err)
		}
	})
}
