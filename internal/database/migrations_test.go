package database

import (
	"path/filepath"
	"testing"

	"github.com/dreamscape-labs/dreamscape/backend/internal/dreams"
	"github.com/dreamscape-labs/dreamscape/backend/internal/profiles"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsProfileCounters(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&dreams.Dream{}, &profiles.Profile{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	profile := profiles.Profile{
		UserID:            "user-1",
		Name:              "Drifted Dreamer",
		Picture:           "/pics/drifted.png",
		TotalDreams:       42,
		PublicDreams:      42,
		JoinedAtSeconds:   1700000000,
		LastActiveSeconds: 1700000000,
	}
	if err := database.Create(&profile).Error; err != nil {
		testContext.Fatalf("failed to insert profile: %v", err)
	}
	for _, seed := range []dreams.Dream{
		{DreamID: "dream-1", UserID: "user-1", Body: "one", DateSeconds: 1, Public: true, TagsJSON: "[]", CreatedAtSeconds: 1},
		{DreamID: "dream-2", UserID: "user-1", Body: "two", DateSeconds: 2, Public: false, TagsJSON: "[]", CreatedAtSeconds: 2},
	} {
		if err := database.Create(&seed).Error; err != nil {
			testContext.Fatalf("failed to insert dream: %v", err)
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var repaired profiles.Profile
	if err := database.Where("user_id = ?", "user-1").Take(&repaired).Error; err != nil {
		testContext.Fatalf("failed to reload profile: %v", err)
	}
	if repaired.TotalDreams != 2 {
		testContext.Fatalf("expected total counter reset to 2, got %d", repaired.TotalDreams)
	}
	if repaired.PublicDreams != 1 {
		testContext.Fatalf("expected public counter reset to 1, got %d", repaired.PublicDreams)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillProfileCounters).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsRunsOnlyOnce(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&dreams.Dream{}, &profiles.Profile{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	// The second run must skip applied migrations and leave drift alone.
	profile := profiles.Profile{
		UserID:            "user-1",
		Name:              "Late Arrival",
		Picture:           "/pics/late.png",
		TotalDreams:       7,
		PublicDreams:      7,
		JoinedAtSeconds:   1700000000,
		LastActiveSeconds: 1700000000,
	}
	if err := database.Create(&profile).Error; err != nil {
		testContext.Fatalf("failed to insert profile: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to re-apply migrations: %v", err)
	}

	var stored profiles.Profile
	if err := database.Where("user_id = ?", "user-1").Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload profile: %v", err)
	}
	if stored.TotalDreams != 7 {
		testContext.Fatalf("expected counters untouched on re-run, got %d", stored.TotalDreams)
	}
}
