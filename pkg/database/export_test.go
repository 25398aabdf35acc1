package database

import (
	"github.com/spf13/afero"
)

func OverloadUC(overload func() (string, error)) func() {
	ucRef := uc
	uc = overload
	return func() { uc = ucRef }
}

func OverloadFS(overload afero.Fs) func() {
	fsRef := fs
	fs = overload
	return func() { fs = fsRef }
}

func CreateFile() error {
	return createFile()
}

func ResolveDBPath() (string, error) {
	return resolveDBPath(uc)
}
