package contract

import (
	"context"

	"realtime-chat-be/internal/entity"
	"realtime-chat-be/internal/repository/specification"
)

type ProfileRepository interface {
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Profile, error)
}
