package mapper

import (
	"realtime-chat-be/internal/entity"
	"realtime-chat-be/internal/model"
)

type ProfileMapper struct{}

func NewProfileMapper() *ProfileMapper {
	return &ProfileMapper{}
}

func (m *ProfileMapper) ProfileToEntity(p *model.Profile) *entity.Profile {
	if p == nil {
		return nil
	}
	return &entity.Profile{
		Id:          p.Id,
		DisplayName: p.DisplayName,
		Email:       p.Email,
	}
}

func (m *ProfileMapper) ProfilesToEntities(models []*model.Profile) []*entity.Profile {
	entities := make([]*entity.Profile, len(models))
	for i, p := range models {
		entities[i] = m.ProfileToEntity(p)
	}
	return entities
}
