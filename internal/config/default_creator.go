package config

import (
	"github.com/google/uuid"
	"github.com/tauraamui/edgeview/pkg/configdef"
)

func DefaultCreator() configdef.Creator {
	return defaultCreator{}
}

type defaultCreator struct{}

func (d defaultCreator) Create() error {
	return create()
}

func DefaultPasswordUpdater() configdef.PasswordUpdater {
	return defaultPasswordUpdater{}
}

type defaultPasswordUpdater struct{}

func (d defaultPasswordUpdater) UpdatePasswordHash(hash string) error {
	return updatePasswordHash(hash, uuid.NewString)
}
