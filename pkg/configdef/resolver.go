package configdef

import "errors"

var ErrConfigAlreadyExists = errors.New("config file already exists")

type Resolver interface {
	Resolve() (Values, error)
}

type Creator interface {
	Create() error
}

type Destroyer interface {
	Destroy() error
}

// PasswordUpdater rewrites the stored api password hash in place.
type PasswordUpdater interface {
	UpdatePasswordHash(hash string) error
}
