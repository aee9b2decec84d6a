//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_message_index.go -package=mocks
package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"team-chat/errors"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/search"
	"github.com/google/uuid"
)

const (
	indexFieldTeam      = "team"
	indexFieldUserID    = "user_id"
	indexFieldUsername  = "username"
	indexFieldText      = "text"
	indexFieldCreatedAt = "created_at"
)

type IMessageIndex interface {
	Index(message DiskMessage) error
	Search(ctx context.Context, teamID int, query string, limit int) ([]DiskMessage, error)
}

// MessageIndex is the full-text index over chat messages.
// Badger stays the source of truth, the index can be rebuilt from it.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) MessageIndex {
	return MessageIndex{writer: writer, log: log}
}

func (i MessageIndex) Index(message DiskMessage) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(indexFieldTeam, strconv.Itoa(message.TeamID)).StoreValue()).
		AddField(bluge.NewKeywordField(indexFieldUserID, message.UserID).StoreValue()).
		AddField(bluge.NewKeywordField(indexFieldUsername, message.Username).StoreValue()).
		AddField(bluge.NewTextField(indexFieldText, message.Text).StoreValue()).
		AddField(bluge.NewDateTimeField(indexFieldCreatedAt, message.CreatedAt).StoreValue().Sortable())
	return i.writer.Update(doc.ID(), doc)
}

// Search matches the query against message texts of one team, newest first.
func (i MessageIndex) Search(ctx context.Context, teamID int, query string, limit int) ([]DiskMessage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.ErrEmptyQuery
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening index reader: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(strconv.Itoa(teamID)).SetField(indexFieldTeam)).
		AddMust(bluge.NewMatchQuery(query).SetField(indexFieldText))
	request := bluge.NewTopNSearch(limit, q).SortBy([]string{"-" + indexFieldCreatedAt})

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	var results []DiskMessage
	match, err := matches.Next()
	for err == nil && match != nil {
		message, visitErr := toDiskMessage(match)
		if visitErr != nil {
			i.log.Warn("Skipping unreadable index entry", "error", visitErr)
		} else {
			results = append(results, message)
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("iterating index results: %w", err)
	}
	return results, nil
}

func toDiskMessage(match *search.DocumentMatch) (DiskMessage, error) {
	var message DiskMessage
	var parseErr error
	err := match.VisitStoredFields(func(field string, value []byte) bool {
		switch field {
		case "_id":
			message.ID, parseErr = uuid.ParseBytes(value)
		case indexFieldTeam:
			message.TeamID, parseErr = strconv.Atoi(string(value))
		case indexFieldUserID:
			message.UserID = string(value)
		case indexFieldUsername:
			message.Username = string(value)
		case indexFieldText:
			message.Text = string(value)
		case indexFieldCreatedAt:
			createdAt, err := bluge.DecodeDateTime(value)
			parseErr = err
			message.CreatedAt = createdAt.UTC()
		}
		return parseErr == nil
	})
	if err != nil {
		return DiskMessage{}, err
	}
	return message, parseErr
}
