package config

import (
	"github.com/tauraamui/edgeview/internal/config"
	"github.com/tauraamui/edgeview/pkg/configdef"
)

type Resolver interface {
	configdef.Resolver
}

func DefaultResolver() Resolver {
	return config.DefaultResolver()
}
