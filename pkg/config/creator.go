package config

import (
	"github.com/tauraamui/edgeview/internal/config"
	"github.com/tauraamui/edgeview/pkg/configdef"
)

type Creator interface {
	configdef.Creator
}

func DefaultCreator() Creator {
	return config.DefaultCreator()
}

type PasswordUpdater interface {
	configdef.PasswordUpdater
}

func DefaultPasswordUpdater() PasswordUpdater {
	return config.DefaultPasswordUpdater()
}
