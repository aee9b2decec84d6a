package services

import (
	"context"
	"testing"
	"time"

	"team-chat/domain"
	"team-chat/errors"
	"team-chat/mocks"
	"team-chat/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestHistoryService_GetMessages(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repository := mocks.NewMockIMessageRepository(ctrl)
	svc := NewHistoryService(repository, mocks.NewMockIMessageIndex(ctrl), 10, 50)
	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

	t.Run("should map stored messages and forward the cursor", func(t *testing.T) {
		req := require.New(t)
		stored := repositories.DiskMessage{ID: uuid.New(), TeamID: 42, UserID: "u-1", Username: "alice", Text: "hello", CreatedAt: at}
		repository.EXPECT().
			GetMessages(42, 10, nil).
			Return([]repositories.DiskMessage{stored}, lo.ToPtr("next"), nil).
			Times(1)

		messages, cursor, err := svc.GetMessages(42, 0, nil)

		req.NoError(err)
		req.Equal("next", *cursor)
		req.Equal([]domain.ChatMessage{{
			ID: stored.ID, TeamID: 42, UserID: "u-1", Username: "alice", Text: "hello", CreatedAt: at,
		}}, messages)
	})

	t.Run("should cap the limit", func(t *testing.T) {
		req := require.New(t)
		repository.EXPECT().GetMessages(42, 50, gomock.Any()).Return(nil, nil, nil).Times(1)

		messages, cursor, err := svc.GetMessages(42, 1000, lo.ToPtr("before"))

		req.NoError(err)
		req.Empty(messages)
		req.Nil(cursor)
	})

	t.Run("should refuse an invalid team", func(t *testing.T) {
		_, _, err := svc.GetMessages(0, 10, nil)
		require.ErrorIs(t, err, errors.ErrInvalidTeamID)
	})

	t.Run("should propagate storage errors", func(t *testing.T) {
		repository.EXPECT().GetMessages(7, 10, gomock.Any()).Return(nil, nil, errors.ErrInvalidCursor).Times(1)
		_, _, err := svc.GetMessages(7, 10, lo.ToPtr("garbage"))
		require.ErrorIs(t, err, errors.ErrInvalidCursor)
	})
}

func TestHistoryService_Search(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	index := mocks.NewMockIMessageIndex(ctrl)
	svc := NewHistoryService(mocks.NewMockIMessageRepository(ctrl), index, 10, 50)
	ctx := context.Background()

	t.Run("should search the team index", func(t *testing.T) {
		req := require.New(t)
		index.EXPECT().
			Search(ctx, 42, "deploy", 5).
			Return([]repositories.DiskMessage{{ID: uuid.New(), TeamID: 42, Text: "deploy done"}}, nil).
			Times(1)

		messages, err := svc.Search(ctx, 42, "  deploy ", 5)

		req.NoError(err)
		req.Len(messages, 1)
		req.Equal("deploy done", messages[0].Text)
	})

	t.Run("should refuse a blank query", func(t *testing.T) {
		_, err := svc.Search(ctx, 42, "   ", 5)
		require.ErrorIs(t, err, errors.ErrEmptyQuery)
	})
}
