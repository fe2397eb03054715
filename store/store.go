package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketEvents  = []byte("processed_events")
	bucketPending = []byte("pending_tips")
)

// PendingTip links a relay queue ID back to the Slack conversation that
// produced it. It is written once after submission and consumed at most once
// by the reconciler.
type PendingTip struct {
	TeamID           string    `json:"team_id"`
	SenderUserID     string    `json:"sender_user_id"`
	RecipientUserIDs []string  `json:"recipient_user_ids"`
	TipAmount        int       `json:"tip_amount"`
	ChannelID        string    `json:"channel_id"`
	MessageTS        string    `json:"message_ts"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

type eventMarker struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// Store wraps a BoltDB instance holding the small expiring state the webhook
// handlers share: event dedup markers and pending tips.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open creates or opens the database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEvents); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketPending); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying DB handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// MarkProcessed atomically records an event ID and reports whether it had
// already been seen inside the dedup window. First writer wins: the check and
// the write share one bolt write transaction, so two concurrent deliveries of
// the same event cannot both observe "new".
func (s *Store) MarkProcessed(eventID string, ttl time.Duration) (bool, error) {
	var seen bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		if data := b.Get([]byte(eventID)); data != nil {
			var m eventMarker
			if err := json.Unmarshal(data, &m); err == nil && s.now().Before(m.ExpiresAt) {
				seen = true
				return nil
			}
			// expired marker, fall through and rewrite
		}
		data, err := json.Marshal(eventMarker{ExpiresAt: s.now().Add(ttl)})
		if err != nil {
			return err
		}
		return b.Put([]byte(eventID), data)
	})
	return seen, err
}

// PutPending stores the tip context under its queue ID. Two different tips
// never legitimately share a queue ID, so a live entry under the same key is
// a logic error.
func (s *Store) PutPending(queueID string, tip PendingTip, ttl time.Duration) error {
	now := s.now()
	tip.CreatedAt = now
	tip.ExpiresAt = now.Add(ttl)
	data, err := json.Marshal(tip)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPending)
		if existing := b.Get([]byte(queueID)); existing != nil {
			var old PendingTip
			if err := json.Unmarshal(existing, &old); err == nil && now.Before(old.ExpiresAt) {
				return fmt.Errorf("pending tip already recorded for queue %s", queueID)
			}
		}
		return b.Put([]byte(queueID), data)
	})
}

// TakePending returns the pending tip for a queue ID and consumes it. The
// read and the delete share one write transaction, so when the relay emits
// both a mined and an errored callback for the same queue ID only the first
// one finds the entry. Not-found is a valid outcome, not an error.
func (s *Store) TakePending(queueID string) (PendingTip, bool, error) {
	var tip PendingTip
	var found bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPending)
		data := b.Get([]byte(queueID))
		if data == nil {
			return nil
		}
		if err := b.Delete([]byte(queueID)); err != nil {
			return err
		}
		if err := json.Unmarshal(data, &tip); err != nil {
			return err
		}
		found = s.now().Before(tip.ExpiresAt)
		return nil
	})
	if err != nil || !found {
		return PendingTip{}, false, err
	}
	return tip, true, nil
}

// Sweep removes expired markers and pending entries. Bolt has no native TTL;
// expiry is enforced on read and reclaimed here.
func (s *Store) Sweep() error {
	now := s.now()
	return s.db.Update(func(tx *bolt.Tx) error {
		ev := tx.Bucket(bucketEvents)
		c := ev.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m eventMarker
			if json.Unmarshal(v, &m) != nil || !now.Before(m.ExpiresAt) {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		pd := tx.Bucket(bucketPending)
		c = pd.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var tip PendingTip
			if json.Unmarshal(v, &tip) != nil || !now.Before(tip.ExpiresAt) {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
