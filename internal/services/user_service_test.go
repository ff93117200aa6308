package services

import (
	"errors"
	"testing"

	"github.com/Alvaro1251/Learnify/internal/models"
	"github.com/Alvaro1251/Learnify/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUserService_CreateAndFind(t *testing.T) {
	_, users := newGroupFixture(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, err := users.Create(ctx, "  Ana@Example.com ", "hash")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Email != "ana@example.com" || !u.IsActive {
		t.Errorf("created user = %+v", u)
	}
	if _, err := users.Create(ctx, "ana@example.com", "hash"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email: got %v", err)
	}

	got, err := users.FindByEmail(ctx, "ANA@example.com")
	if err != nil || got.ID != u.ID {
		t.Errorf("FindByEmail = %+v, %v", got, err)
	}
	if _, err := users.FindByID(ctx, "not-an-id"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("FindByID bad id: got %v", err)
	}
}

func TestUserService_DisplayName(t *testing.T) {
	_, users := newGroupFixture(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := createUser(t, users, "a@example.com", "", "")
	name, err := users.DisplayName(ctx, u.ID.Hex())
	if err != nil || name != "" {
		t.Errorf("no profile: %q, %v", name, err)
	}

	first, last := "Ana", "Gomez"
	if _, err := users.UpdateProfile(ctx, u.ID.Hex(), models.ProfileUpdate{FullName: &first, LastName: &last}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if name, _ := users.DisplayName(ctx, u.ID.Hex()); name != "Ana Gomez" {
		t.Errorf("DisplayName = %q", name)
	}

	if name, err := users.DisplayName(ctx, primitive.NewObjectID().Hex()); err != nil || name != "" {
		t.Errorf("unknown user: %q, %v", name, err)
	}
	if name, err := users.DisplayName(ctx, "garbage"); err != nil || name != "" {
		t.Errorf("invalid id: %q, %v", name, err)
	}
}

func TestUserService_DisplayNameCacheInvalidatedOnRename(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := NewUserService(db, NewCacheService(testutil.SetupTestRedis(t)), testutil.Logger())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, err := users.Create(ctx, "a@example.com", "hash")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first := "Ana"
	if _, err := users.UpdateProfile(ctx, u.ID.Hex(), models.ProfileUpdate{FullName: &first}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if name, _ := users.DisplayName(ctx, u.ID.Hex()); name != "Ana" {
		t.Fatalf("DisplayName = %q", name)
	}

	renamed := "Anita"
	if _, err := users.UpdateProfile(ctx, u.ID.Hex(), models.ProfileUpdate{FullName: &renamed}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if name, _ := users.DisplayName(ctx, u.ID.Hex()); name != "Anita" {
		t.Errorf("DisplayName after rename = %q, want Anita", name)
	}
}
