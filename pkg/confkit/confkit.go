// Package confkit carries the pieces shared by every config loader in the
// repo: project-root discovery, .env seeding, path resolution and hydration
// of split-out section files.
package confkit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeromicro/go-zero/core/conf"
)

// ResolvePath expands $VAR references in file and anchors relative paths at
// base. Absolute paths pass through untouched.
func ResolvePath(base, file string) string {
	if file = os.ExpandEnv(file); filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

// BaseDir is the directory the main config file lives in; section files
// resolve relative to it.
func BaseDir(mainPath string) string {
	return filepath.Dir(mainPath)
}

// LoadFile decodes the config file at path into a fresh T with go-zero's
// loader. useEnv switches on ${VAR} substitution inside the file.
func LoadFile[T any](path string, useEnv bool) (*T, error) {
	var opts []conf.Option
	if useEnv {
		opts = append(opts, conf.UseEnv())
	}
	cfg := new(T)
	if err := conf.Load(path, cfg, opts...); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Section points at a split-out config file and, once hydrated, holds its
// decoded value. Leaving File empty keeps the section disabled.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate resolves File against base and decodes it with loader. The
// resolved path is written back to File so later log lines name the real
// location.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}
	path := ResolvePath(base, s.File)
	value, err := loader(path)
	if err != nil {
		return err
	}
	s.File = path
	s.Value = value
	return nil
}
