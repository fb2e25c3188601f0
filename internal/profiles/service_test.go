package profiles

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dreamscape-labs/dreamscape/backend/internal/dreams"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestGetOrCreateReturnsDefaultsForNewIdentity(t *testing.T) {
	service, _ := newTestService(t)

	profile, err := service.GetOrCreate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Name != DefaultName {
		t.Fatalf("expected default name %q, got %q", DefaultName, profile.Name)
	}
	if profile.Picture != DefaultPicture {
		t.Fatalf("expected default picture %q, got %q", DefaultPicture, profile.Picture)
	}
	if profile.TotalDreams != 0 || profile.PublicDreams != 0 {
		t.Fatalf("expected zero counters, got %d/%d", profile.TotalDreams, profile.PublicDreams)
	}
	if profile.JoinedAtSeconds == 0 || profile.LastActiveSeconds == 0 {
		t.Fatalf("expected activity timestamps to be set")
	}

	again, err := service.GetOrCreate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error on second lookup: %v", err)
	}
	if again.JoinedAtSeconds != profile.JoinedAtSeconds {
		t.Fatalf("expected existing row to be reused")
	}
}

func TestGetOrCreateRejectsBlankIdentity(t *testing.T) {
	service, _ := newTestService(t)

	if _, err := service.GetOrCreate(context.Background(), "   "); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected invalid user id error, got %v", err)
	}
}

func TestEnsureAdoptsClaimsOnlyWhileDefaults(t *testing.T) {
	service, _ := newTestService(t)

	profile, err := service.Ensure(context.Background(), "user-1", "Google Name", "https://photos/google.jpg")
	if err != nil {
		t.Fatalf("unexpected ensure error: %v", err)
	}
	if profile.Name != "Google Name" || profile.Picture != "https://photos/google.jpg" {
		t.Fatalf("expected claims adopted on first login, got %q %q", profile.Name, profile.Picture)
	}

	customName := "My Chosen Name"
	if _, err := service.UpdateFields(context.Background(), "user-1", UpdateRequest{Name: &customName}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	profile, err = service.Ensure(context.Background(), "user-1", "Different Google Name", "")
	if err != nil {
		t.Fatalf("unexpected ensure error: %v", err)
	}
	if profile.Name != customName {
		t.Fatalf("expected user-chosen name to survive login, got %q", profile.Name)
	}
}

func TestUpdateFieldsAppliesPartialUpdates(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.GetOrCreate(context.Background(), "user-1"); err != nil {
		t.Fatalf("failed to seed profile: %v", err)
	}

	bio := "I journal every morning."
	seen := true
	profile, err := service.UpdateFields(context.Background(), "user-1", UpdateRequest{
		Bio:          &bio,
		HasSeenGuide: &seen,
	})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if profile.Bio != bio {
		t.Fatalf("expected bio update, got %q", profile.Bio)
	}
	if !profile.HasSeenGuide {
		t.Fatalf("expected guide flag to be set")
	}
	if profile.Name != DefaultName {
		t.Fatalf("expected untouched fields to survive, got %q", profile.Name)
	}
}

func TestUpdateFieldsFailsForUnknownIdentity(t *testing.T) {
	service, _ := newTestService(t)

	name := "Ghost"
	if _, err := service.UpdateFields(context.Background(), "nobody", UpdateRequest{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLookupDoesNotCreateRows(t *testing.T) {
	service, db := newTestService(t)

	if _, err := service.Lookup(context.Background(), "visitor"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}

	var count int64
	if err := db.Model(&Profile{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count profiles: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected lookup to leave no rows, got %d", count)
	}
}

func TestRecountRepairsDriftedCounters(t *testing.T) {
	service, db := newTestService(t)
	if _, err := service.GetOrCreate(context.Background(), "user-1"); err != nil {
		t.Fatalf("failed to seed profile: %v", err)
	}

	seedDream(t, db, "dream-1", "user-1", true)
	seedDream(t, db, "dream-2", "user-1", false)
	seedDream(t, db, "dream-3", "user-1", true)
	seedDream(t, db, "dream-4", "someone-else", true)

	// Force drift the way lost updates would.
	if err := db.Model(&Profile{}).Where("user_id = ?", "user-1").
		Updates(map[string]interface{}{"total_dreams": 9, "public_dreams": 9}).Error; err != nil {
		t.Fatalf("failed to force drift: %v", err)
	}

	profile, err := service.RecountProfile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected recount error: %v", err)
	}
	if profile.TotalDreams != 3 {
		t.Fatalf("expected 3 total dreams, got %d", profile.TotalDreams)
	}
	if profile.PublicDreams != 2 {
		t.Fatalf("expected 2 public dreams, got %d", profile.PublicDreams)
	}
}

func TestRecordDreamCreatedIncrementsCounters(t *testing.T) {
	service, _ := newTestService(t)

	if err := service.RecordDreamCreated(context.Background(), "user-1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.RecordDreamCreated(context.Background(), "user-1", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	profile, err := service.GetOrCreate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if profile.TotalDreams != 2 {
		t.Fatalf("expected 2 total dreams, got %d", profile.TotalDreams)
	}
	if profile.PublicDreams != 1 {
		t.Fatalf("expected 1 public dream, got %d", profile.PublicDreams)
	}
}

func TestDisplayInfoBootstrapsProfile(t *testing.T) {
	service, _ := newTestService(t)

	name, picture, err := service.DisplayInfo(context.Background(), "brand-new")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != DefaultName || picture != DefaultPicture {
		t.Fatalf("expected default display info, got %q %q", name, picture)
	}
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:profiles_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Profile{}, &dreams.Dream{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    func() time.Time { return time.Unix(1700000600, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("failed to construct profiles service: %v", err)
	}
	return service, db
}

func seedDream(t *testing.T, db *gorm.DB, dreamID, userID string, public bool) {
	t.Helper()
	dream := dreams.Dream{
		DreamID:          dreamID,
		UserID:           userID,
		Body:             "seeded",
		DateSeconds:      1700000000,
		Public:           public,
		TagsJSON:         "[]",
		CreatedAtSeconds: 1700000000,
	}
	if err := db.Create(&dream).Error; err != nil {
		t.Fatalf("failed to seed dream: %v", err)
	}
}
