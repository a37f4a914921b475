// Package bolt stores the conversation log in a bbolt file, one JSON value
// per session keyed by creation sequence.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/storage/models"
	"github.com/oral-history/backend/pkg/logger"
)

var (
	bucketSessions = []byte("sessions")
	bucketIndex    = []byte("session_index")
)

// DefaultLockTimeout bounds how long Open waits for another process holding
// the file lock.
const DefaultLockTimeout = 5 * time.Second

type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	return OpenWithTimeout(path, DefaultLockTimeout)
}

func OpenWithTimeout(path string, lockTimeout time.Duration) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketSessions, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Bolt conversation store opened", zap.String("path", path))
	return &Store{db: db}, nil
}

func (s *Store) Load(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(k, v []byte) error {
			var sess models.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return fmt.Errorf("decode session %d: %w", binary.BigEndian.Uint64(k), err)
			}
			sessions = append(sessions, sess)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// Flush writes every touched session in a single transaction. New sessions get
// the next sequence number so Load returns creation order. ctx is checked again
// before commit; an expired deadline rolls the transaction back.
func (s *Store) Flush(ctx context.Context, snapshot []models.Session, touched []models.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		index := tx.Bucket(bucketIndex)

		for _, sess := range touched {
			key := index.Get([]byte(sess.SessionID))
			if key == nil {
				seq, err := sessions.NextSequence()
				if err != nil {
					return err
				}
				key = make([]byte, 8)
				binary.BigEndian.PutUint64(key, seq)
				if err := index.Put([]byte(sess.SessionID), key); err != nil {
					return err
				}
			} else {
				key = append([]byte(nil), key...)
			}

			data, err := json.Marshal(sess)
			if err != nil {
				return fmt.Errorf("encode session %s: %w", sess.SessionID, err)
			}
			if err := sessions.Put(key, data); err != nil {
				return err
			}
		}
		return ctx.Err()
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
