package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"realtime-chat-be/internal/dto"
	"realtime-chat-be/internal/entity"
	"realtime-chat-be/internal/pkg/logger"
	"realtime-chat-be/internal/repository/specification"
	"realtime-chat-be/internal/repository/unitofwork"
	"realtime-chat-be/pkg/chat/chaterr"
	"realtime-chat-be/pkg/chat/profile"

	"github.com/google/uuid"
)

const searchResultLimit = 10

type IChatService interface {
	CreateChat(ctx context.Context, creatorId uuid.UUID, req *dto.CreateChatRequest) (*dto.CreateChatResponse, error)
	SearchUsers(ctx context.Context, userId uuid.UUID, query string, excludeIds []uuid.UUID) ([]*dto.UserSearchResponse, error)
}

type chatService struct {
	uowFactory      unitofwork.RepositoryFactory
	resolver        *profile.Resolver
	logger          logger.ILogger
	searchMinLength int
	now             func() time.Time
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	resolver *profile.Resolver,
	log logger.ILogger,
	searchMinLength int,
) IChatService {
	return &chatService{
		uowFactory:      uowFactory,
		resolver:        resolver,
		logger:          log,
		searchMinLength: searchMinLength,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// CreateChat inserts the conversation and then its participants. The store has no
// multi-statement transactions, so a failed participant insert is compensated by
// deleting the conversation.
func (s *chatService) CreateChat(ctx context.Context, creatorId uuid.UUID, req *dto.CreateChatRequest) (*dto.CreateChatResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, chaterr.Validation("title is required")
	}

	seen := map[uuid.UUID]struct{}{creatorId: {}}
	members := make([]uuid.UUID, 0, len(req.ParticipantIds))
	for _, id := range req.ParticipantIds {
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	if len(members) == 0 {
		return nil, chaterr.Validation("at least one other participant is required")
	}

	kind := entity.ConversationKindGroup
	if len(members) == 1 {
		kind = entity.ConversationKindDirect
	}

	now := s.now()
	conversation := &entity.Conversation{
		Title:          title,
		Kind:           kind,
		Labels:         normalizeLabels(req.Labels),
		CreatedBy:      creatorId,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.ConversationRepository().Create(ctx, conversation); err != nil {
		return nil, chaterr.Persistence("insert conversation", err)
	}

	participants := make([]*entity.Participant, 0, len(members)+1)
	participants = append(participants, &entity.Participant{
		ConversationId: conversation.Id,
		UserId:         creatorId,
		Role:           entity.ParticipantRoleAdmin,
		JoinedAt:       now,
	})
	for _, id := range members {
		participants = append(participants, &entity.Participant{
			ConversationId: conversation.Id,
			UserId:         id,
			Role:           entity.ParticipantRoleMember,
			JoinedAt:       now,
		})
	}

	if err := uow.ParticipantRepository().CreateBatch(ctx, participants); err != nil {
		cause := fmt.Errorf("insert participants: %w", err)
		// Compensate even when the caller is gone.
		if delErr := uow.ConversationRepository().Delete(context.WithoutCancel(ctx), conversation.Id); delErr != nil {
			cause = errors.Join(cause, fmt.Errorf("delete conversation %s: %w", conversation.Id, delErr))
			s.logger.Error("CHAT", "Compensating delete failed, conversation orphaned", map[string]interface{}{
				"conversation_id": conversation.Id.String(),
				"error":           delErr.Error(),
			})
		}
		s.logger.Warn("CHAT", "Conversation creation rolled back", map[string]interface{}{
			"conversation_id": conversation.Id.String(),
			"error":           err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", chaterr.ErrPartialFailure, cause)
	}

	s.logger.Info("CHAT", "Conversation created", map[string]interface{}{
		"conversation_id": conversation.Id.String(),
		"kind":            string(kind),
		"participants":    len(participants),
	})

	return &dto.CreateChatResponse{
		Id:   conversation.Id,
		Kind: string(kind),
	}, nil
}

func (s *chatService) SearchUsers(ctx context.Context, userId uuid.UUID, query string, excludeIds []uuid.UUID) ([]*dto.UserSearchResponse, error) {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < s.searchMinLength {
		return nil, chaterr.Validation("search query must be at least %d characters", s.searchMinLength)
	}

	exclude := append([]uuid.UUID{userId}, excludeIds...)
	uow := s.uowFactory.NewUnitOfWork(ctx)
	profiles, err := uow.ProfileRepository().FindAll(ctx,
		specification.ProfileSearchQuery{Query: escapeLike(q)},
		specification.ExcludeIDs{IDs: exclude},
		specification.OrderBy{Field: "email"},
		specification.Pagination{Limit: searchResultLimit},
	)
	if err != nil {
		return nil, chaterr.Persistence("search profiles", err)
	}

	res := make([]*dto.UserSearchResponse, 0, len(profiles))
	for _, p := range profiles {
		s.resolver.Remember(p)
		res = append(res, &dto.UserSearchResponse{
			Id:          p.Id,
			DisplayName: p.DisplayName,
			Email:       p.Email,
			Label:       profile.Label(p),
		})
	}
	return res, nil
}

func normalizeLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
