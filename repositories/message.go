//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"team-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// MessagePrefix starts every stored chat message key.
const MessagePrefix = "msg:"

var cursorPattern = regexp.MustCompile(`^\d{19}:[0-9a-f-]{36}$`)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) error
	GetMessages(teamID int, limit int, cursor *string) ([]DiskMessage, *string, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

// NewMessageRepository creates the badger message store.
// limitMessages caps the page size, nil means no cap.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type DiskMessage struct {
	ID        uuid.UUID
	TeamID    int
	UserID    string
	Username  string
	Text      string
	CreatedAt time.Time
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{team_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func (m MessageRepository) StoreMessage(message DiskMessage) error {
	if message.ID == uuid.Nil {
		return fmt.Errorf("message without id")
	}
	key := messageKey(message)
	value := marshalMessage(message)
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Recent returns the latest messages of a team, newest first.
func (m MessageRepository) Recent(teamID int, limit int) ([]DiskMessage, error) {
	messages, _, err := m.GetMessages(teamID, limit, nil)
	return messages, err
}

// GetMessages retrieves messages for a team using a reverse prefix scan.
// Thanks to the padded timestamp in the key, messages come out newest first.
// A nil cursor starts from the newest message, otherwise the scan resumes
// strictly before the cursor.
// The returned cursor is nil once the history is exhausted.
func (m MessageRepository) GetMessages(teamID int, limit int, cursor *string) ([]DiskMessage, *string, error) {
	if cursor != nil && !cursorPattern.MatchString(*cursor) {
		return nil, nil, fmt.Errorf("%w: %q", errors.ErrInvalidCursor, *cursor)
	}
	limit = m.pageSize(limit)

	var diskMessages []DiskMessage
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("%s%d:", MessagePrefix, teamID)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Let's go the newest position msg:42:9999999999999999999
			// Then, we go back and find few messages
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999")...)
		default:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(diskMessages) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				message, err := unmarshalMessage(value)
				if err != nil {
					return fmt.Errorf("decoding %s: %w", item.Key(), err)
				}
				diskMessages = append(diskMessages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 || len(diskMessages) < limit {
		return diskMessages, nil, nil
	}
	return diskMessages, &lastKey, nil
}

func (m MessageRepository) pageSize(limit int) int {
	if m.limitMessages == nil {
		return limit
	}
	if limit <= 0 || limit > *m.limitMessages {
		return *m.limitMessages
	}
	return limit
}

func messageKey(message DiskMessage) []byte {
	return []byte(fmt.Sprintf("%s%d:%019d:%s",
		MessagePrefix,
		message.TeamID,
		message.CreatedAt.UnixNano(),
		message.ID,
	))
}

// DecodeMessage exposes the stored value format to inspection tools.
func DecodeMessage(value []byte) (DiskMessage, error) {
	return unmarshalMessage(value)
}
