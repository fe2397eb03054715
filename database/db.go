package database

import (
	"fmt"

	"tacotip-backend/config"
	"tacotip-backend/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Connect opens the shared Postgres handle. Workspace data is scoped by
// team_id columns, so a single schema serves every installation.
func Connect(cfg *config.Config) error {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=5432 sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("could not connect to database: %w", err)
	}
	return nil
}

func AutoMigrate() error {
	return DB.AutoMigrate(
		&models.Installation{},
		&models.NotificationPreference{},
		&models.TipRecord{},
	)
}
