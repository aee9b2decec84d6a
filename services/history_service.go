//go:generate go run go.uber.org/mock/mockgen -source=history_service.go -destination=../mocks/mock_history_service.go -package=mocks
package services

import (
	"context"
	"strings"

	"team-chat/domain"
	"team-chat/errors"
	"team-chat/repositories"
	"team-chat/sink"

	"github.com/samber/lo"
)

type IHistoryService interface {
	GetMessages(teamID, limit int, before *string) ([]domain.ChatMessage, *string, error)
	Search(ctx context.Context, teamID int, query string, limit int) ([]domain.ChatMessage, error)
}

// HistoryService reads what the persistence pipeline stored, newest first.
type HistoryService struct {
	repository   repositories.IMessageRepository
	index        repositories.IMessageIndex
	defaultLimit int
	maxLimit     int
}

func NewHistoryService(repository repositories.IMessageRepository, index repositories.IMessageIndex,
	defaultLimit, maxLimit int) *HistoryService {
	return &HistoryService{
		repository:   repository,
		index:        index,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

func (s *HistoryService) GetMessages(teamID, limit int, before *string) ([]domain.ChatMessage, *string, error) {
	if teamID <= 0 {
		return nil, nil, errors.ErrInvalidTeamID
	}
	messages, cursor, err := s.repository.GetMessages(teamID, s.clamp(limit), before)
	if err != nil {
		return nil, nil, err
	}
	return lo.Map(messages, func(item repositories.DiskMessage, _ int) domain.ChatMessage {
		return sink.FromDiskMessage(item)
	}), cursor, nil
}

func (s *HistoryService) Search(ctx context.Context, teamID int, query string, limit int) ([]domain.ChatMessage, error) {
	if teamID <= 0 {
		return nil, errors.ErrInvalidTeamID
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.ErrEmptyQuery
	}
	messages, err := s.index.Search(ctx, teamID, query, s.clamp(limit))
	if err != nil {
		return nil, err
	}
	return lo.Map(messages, func(item repositories.DiskMessage, _ int) domain.ChatMessage {
		return sink.FromDiskMessage(item)
	}), nil
}

// clamp falls back to the default for non positive limits and caps the rest.
func (s *HistoryService) clamp(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	return min(limit, s.maxLimit)
}
