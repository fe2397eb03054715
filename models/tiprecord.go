package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tip record outcome states.
const (
	TipStatusSubmitted = "submitted"
	TipStatusMined     = "mined"
	TipStatusErrored   = "errored"
)

// TipRecord is the durable audit trail of every batch handed to the relay.
// The expiring pending-tip entry in the KV store drives notifications; this
// row is what survives the TTL.
type TipRecord struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	QueueID      string         `json:"queue_id" gorm:"size:64;uniqueIndex;not null"`
	TeamID       string         `json:"team_id" gorm:"size:32;index"`
	SenderUserID string         `json:"sender_user_id" gorm:"size:32;index"`
	RecipientIDs datatypes.JSON `json:"recipient_ids"`
	Amount       int            `json:"amount"`
	ChannelID    string         `json:"channel_id" gorm:"size:32"`
	MessageTS    string         `json:"message_ts" gorm:"size:32"`

	Status          string `json:"status" gorm:"size:16;index"`
	TransactionHash string `json:"transaction_hash" gorm:"size:80"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTipRecord builds a submitted-state row for a freshly queued batch.
func NewTipRecord(queueID, teamID, sender string, recipients []string, amount int, channelID, messageTS string) (*TipRecord, error) {
	raw, err := json.Marshal(recipients)
	if err != nil {
		return nil, err
	}
	return &TipRecord{
		QueueID:      queueID,
		TeamID:       teamID,
		SenderUserID: sender,
		RecipientIDs: datatypes.JSON(raw),
		Amount:       amount,
		ChannelID:    channelID,
		MessageTS:    messageTS,
		Status:       TipStatusSubmitted,
	}, nil
}

// MarkTipOutcome stamps the relay's verdict onto the audit row. Unknown
// queue IDs are ignored; not every relay callback belongs to a tip.
func MarkTipOutcome(db *gorm.DB, queueID, status, txHash string) error {
	return db.Model(&TipRecord{}).
		Where("queue_id = ?", queueID).
		Updates(map[string]any{
			"status":           status,
			"transaction_hash": txHash,
		}).Error
}
