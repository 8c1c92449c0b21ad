package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweetshop/sweetshop-backend/internal/testutil"
	"github.com/sweetshop/sweetshop-backend/pkg/db"
	"github.com/sweetshop/sweetshop-backend/pkg/enums"
	"gorm.io/gorm"
)

func TestRepositoryCreateAndFind(t *testing.T) {
	repo := NewRepository(testutil.OpenSQLite(t))
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateUserDTO{
		Username:     " candy ",
		Email:        "Candy@Example.COM ",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.Role != enums.UserRoleUser {
		t.Fatalf("expected default role user, got %s", user.Role)
	}

	found, err := repo.FindByEmail(ctx, "candy@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if found.ID != user.ID || found.Username != "candy" {
		t.Fatalf("unexpected user %+v", found)
	}

	if _, err := repo.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}

	if _, err := repo.Create(ctx, CreateUserDTO{Username: "other", Email: "candy@example.com", PasswordHash: "x"}); !db.IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestRepositoryUpdates(t *testing.T) {
	repo := NewRepository(testutil.OpenSQLite(t))
	ctx := context.Background()
	user, err := repo.Create(ctx, CreateUserDTO{Username: "lolly", Email: "lolly@example.com", PasswordHash: "old"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := repo.UpdateLastLogin(ctx, user.ID, at); err != nil {
		t.Fatalf("update last login: %v", err)
	}
	if err := repo.UpdatePasswordHash(ctx, user.ID, "new"); err != nil {
		t.Fatalf("update hash: %v", err)
	}

	reloaded, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if reloaded.PasswordHash != "new" {
		t.Fatalf("expected new hash, got %q", reloaded.PasswordHash)
	}
	if reloaded.LastLoginAt == nil || !reloaded.LastLoginAt.Equal(at) {
		t.Fatalf("expected last login %v, got %v", at, reloaded.LastLoginAt)
	}
}
