package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrMissingInstallation means no bot token is on record for a team. Any
// Slack-facing action for that team is a configuration error, not a retry.
var ErrMissingInstallation = errors.New("no installation on record for team")

// Installation maps a Slack workspace to the bot token obtained via OAuth.
type Installation struct {
	ID                uint   `json:"id" gorm:"primaryKey"`
	TeamID            string `json:"team_id" gorm:"size:32;uniqueIndex;not null"`
	EnterpriseID      string `json:"enterprise_id" gorm:"size:32"`
	BotToken          string `json:"-" gorm:"not null"`
	InstalledByUserID string `json:"installed_by_user_id" gorm:"size:32"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InstallationForTeam returns the installation row for a team, or
// ErrMissingInstallation when none exists.
func InstallationForTeam(db *gorm.DB, teamID string) (*Installation, error) {
	var inst Installation
	if err := db.Where("team_id = ?", teamID).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMissingInstallation
		}
		return nil, err
	}
	if inst.BotToken == "" {
		return nil, ErrMissingInstallation
	}
	return &inst, nil
}

// UpsertInstallation creates or refreshes the row for a team. Reinstalls
// rotate the bot token, so the token always follows the latest exchange.
func UpsertInstallation(db *gorm.DB, inst *Installation) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "team_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"bot_token", "enterprise_id", "updated_at"}),
	}).Create(inst).Error
}
