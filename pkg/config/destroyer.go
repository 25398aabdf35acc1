package config

import (
	"github.com/tauraamui/edgeview/internal/config"
	"github.com/tauraamui/edgeview/pkg/configdef"
)

type Destroyer interface {
	configdef.Destroyer
}

func DefaultDestroyer() Destroyer {
	return config.DefaultDestroyer()
}
