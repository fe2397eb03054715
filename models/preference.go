package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationPreference records whether a user wants a DM when tipped.
// Absence of a row means notifications are on.
type NotificationPreference struct {
	ID                  uint   `json:"id" gorm:"primaryKey"`
	TeamID              string `json:"team_id" gorm:"size:32;uniqueIndex:idx_pref_team_user,priority:1;not null"`
	UserID              string `json:"user_id" gorm:"size:32;uniqueIndex:idx_pref_team_user,priority:2;not null"`
	NotifyOnTipReceived bool   `json:"notify_on_tip_received"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotifyAllowed reports whether a received-tip DM may be sent to the user.
// Lookup failures default to notifying; a dropped notification is worse than
// an extra one only when the user explicitly opted out.
func NotifyAllowed(db *gorm.DB, teamID, userID string) bool {
	var pref NotificationPreference
	err := db.Where("team_id = ? AND user_id = ?", teamID, userID).First(&pref).Error
	if err != nil {
		return true
	}
	return pref.NotifyOnTipReceived
}

// SetNotifyPreference upserts the user's choice from the home tab radio.
func SetNotifyPreference(db *gorm.DB, teamID, userID string, notify bool) error {
	pref := NotificationPreference{TeamID: teamID, UserID: userID, NotifyOnTipReceived: notify}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "team_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"notify_on_tip_received", "updated_at"}),
	}).Create(&pref).Error
}

// PreferenceForUser returns the stored preference, or nil when unset.
func PreferenceForUser(db *gorm.DB, teamID, userID string) (*NotificationPreference, error) {
	var pref NotificationPreference
	err := db.Where("team_id = ? AND user_id = ?", teamID, userID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}
