package confkit

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenvOnce seeds the process environment from .env files found between
// this source tree and the repository root. Only the first call does work.
// Variables already present in the environment win unless DOTENV_OVERLOAD=1;
// ENV_FILE pins one explicit file and NO_DOTENV=1 disables loading entirely.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}

	load := godotenv.Load
	if os.Getenv("DOTENV_OVERLOAD") == "1" {
		load = godotenv.Overload
	}

	if pinned := os.Getenv("ENV_FILE"); pinned != "" {
		_ = load(pinned)
		return
	}

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		_ = load(".env")
		return
	}
	climb(filepath.Dir(file), func(dir string) bool {
		if env := filepath.Join(dir, ".env"); fileExists(env) {
			_ = load(env)
		}
		return isRepoRoot(dir)
	})
}
