package confkit

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const maxClimb = 8

// climb walks from start towards the filesystem root, calling visit for each
// directory until visit returns true or maxClimb levels are exhausted.
func climb(start string, visit func(dir string) bool) {
	dir := start
	for i := 0; i < maxClimb; i++ {
		if visit(dir) {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func isRepoRoot(dir string) bool {
	return fileExists(filepath.Join(dir, "go.mod")) || fileExists(filepath.Join(dir, ".git"))
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}

var (
	rootOnce sync.Once
	rootDir  string
	rootErr  error
)

// ProjectRoot locates the repository root by walking up from this source
// file until a directory holds go.mod or .git, falling back to the working
// directory when nothing matches (e.g. a deployed binary without sources).
// The answer is cached for the life of the process.
func ProjectRoot() (string, error) {
	rootOnce.Do(func() {
		if _, file, _, ok := runtime.Caller(0); ok {
			climb(filepath.Dir(file), func(dir string) bool {
				if isRepoRoot(dir) {
					rootDir = dir
					return true
				}
				return false
			})
		}
		if rootDir == "" {
			wd, err := os.Getwd()
			if err != nil {
				rootDir, rootErr = ".", fmt.Errorf("getwd: %w", err)
				return
			}
			rootDir = wd
		}
	})
	return rootDir, rootErr
}

// MustProjectRoot returns the repository root path or panics.
func MustProjectRoot() string {
	root, err := ProjectRoot()
	if err != nil {
		panic(err)
	}
	return root
}

// ProjectPath joins the repository root with rel.
func ProjectPath(rel string) (string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

// MustProjectPath returns ProjectPath(rel) or panics.
func MustProjectPath(rel string) string {
	p, err := ProjectPath(rel)
	if err != nil {
		panic(err)
	}
	return p
}
