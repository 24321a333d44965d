package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/code100x/contestauth"
)

func TestUsersCRUD(t *testing.T) {
	s := NewUsers()
	ctx := context.Background()

	if _, err := s.GetUserByEmail(ctx, "a@x.com"); !errors.Is(err, contestauth.ErrStoreUserNotFound) {
		t.Fatalf("missing by email: %v", err)
	}

	u := contestauth.User{ID: "u1", Email: "a@x.com", PasswordHash: "h1", Role: contestauth.RoleUser}
	if _, err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateUser(ctx, contestauth.User{ID: "u2", Email: "a@x.com"}); !errors.Is(err, contestauth.ErrStoreDuplicateEmail) {
		t.Fatalf("duplicate: %v", err)
	}

	if err := s.UpdatePasswordHash(ctx, "u1", "h2"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetUserByID(ctx, "u1")
	if err != nil || got.PasswordHash != "h2" {
		t.Fatalf("by id: %+v %v", got, err)
	}
	if err := s.UpdatePasswordHash(ctx, "nope", "h"); !errors.Is(err, contestauth.ErrStoreUserNotFound) {
		t.Fatalf("update missing: %v", err)
	}
}

func TestUsersConcurrentCreateSameEmail(t *testing.T) {
	s := NewUsers()
	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateUser(context.Background(), contestauth.User{ID: fmt.Sprintf("u%d", i), Email: "race@x.com"})
			if err == nil {
				created.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if created.Load() != 1 || s.Len() != 1 {
		t.Fatalf("created %d users, stored %d", created.Load(), s.Len())
	}
}
