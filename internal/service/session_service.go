package service

import (
	"time"

	"realtime-chat-be/internal/pkg/logger"
	"realtime-chat-be/internal/repository/memory"
	"realtime-chat-be/pkg/changefeed"
	"realtime-chat-be/pkg/chat/profile"
	"realtime-chat-be/pkg/chat/session"

	"github.com/google/uuid"
)

type ISessionService interface {
	// Get returns the user's live session, starting one if needed.
	Get(userId uuid.UUID) *session.Session
	// Drop closes the user's session and all of its subscriptions.
	Drop(userId uuid.UUID)
	Close()
}

type sessionService struct {
	repo      *memory.SessionRepository
	deps      session.Deps
	tolerance time.Duration
	logger    logger.ILogger
}

func NewSessionService(
	repo *memory.SessionRepository,
	backend session.Backend,
	feed changefeed.Feed,
	resolver *profile.Resolver,
	notifier session.Notifier,
	log logger.ILogger,
	tolerance time.Duration,
) ISessionService {
	return &sessionService{
		repo: repo,
		deps: session.Deps{
			Backend:  backend,
			Feed:     feed,
			Resolver: resolver,
			Notifier: notifier,
			Logger:   log,
		},
		tolerance: tolerance,
		logger:    log,
	}
}

func (s *sessionService) Get(userId uuid.UUID) *session.Session {
	return s.repo.GetOrCreate(userId, func() *session.Session {
		s.logger.Info("SESSION", "Starting session", map[string]interface{}{
			"user_id": userId.String(),
		})
		return session.New(userId, s.deps, session.WithTolerance(s.tolerance))
	})
}

func (s *sessionService) Drop(userId uuid.UUID) {
	s.repo.Delete(userId)
	s.logger.Info("SESSION", "Session closed", map[string]interface{}{
		"user_id": userId.String(),
	})
}

func (s *sessionService) Close() {
	count := s.repo.Count()
	s.repo.Flush()
	s.logger.Info("SESSION", "All sessions closed", map[string]interface{}{
		"count": count,
	})
}
