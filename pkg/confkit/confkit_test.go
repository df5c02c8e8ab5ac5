package confkit_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"arena-api/pkg/confkit"
)

func TestResolvePath(t *testing.T) {
	t.Setenv("CONFKIT_TEST_DIR", "sub")

	tests := []struct {
		name string
		base string
		file string
		want string
	}{
		{"absolute passes through", "/base", "/etc/arena/venue.yaml", "/etc/arena/venue.yaml"},
		{"relative anchors at base", "/base", "etc/venue.yaml", "/base/etc/venue.yaml"},
		{"env var expands", "/base", "${CONFKIT_TEST_DIR}/venue.yaml", "/base/sub/venue.yaml"},
		{"expansion may yield absolute", "/base", "$HOME/venue.yaml", filepath.Join(os.Getenv("HOME"), "venue.yaml")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, confkit.ResolvePath(tt.base, tt.file))
		})
	}
}

func TestBaseDir(t *testing.T) {
	require.Equal(t, "/etc/arena", confkit.BaseDir("/etc/arena/app.yaml"))
	require.Equal(t, "etc", confkit.BaseDir("etc/app.yaml"))
	require.Equal(t, "/", confkit.BaseDir("/app.yaml"))
}

func TestLoadFile(t *testing.T) {
	type section struct {
		Name    string `json:"Name"`
		Testnet bool   `json:"Testnet,optional"`
	}

	t.Run("decodes yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "venue.yaml")
		require.NoError(t, os.WriteFile(path, []byte("Name: binance\nTestnet: true\n"), 0o644))

		cfg, err := confkit.LoadFile[section](path, false)
		require.NoError(t, err)
		require.Equal(t, "binance", cfg.Name)
		require.True(t, cfg.Testnet)
	})

	t.Run("substitutes env when enabled", func(t *testing.T) {
		t.Setenv("CONFKIT_TEST_NAME", "sim")
		path := filepath.Join(t.TempDir(), "venue.yaml")
		require.NoError(t, os.WriteFile(path, []byte("Name: ${CONFKIT_TEST_NAME}\n"), 0o644))

		cfg, err := confkit.LoadFile[section](path, true)
		require.NoError(t, err)
		require.Equal(t, "sim", cfg.Name)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := confkit.LoadFile[section](filepath.Join(t.TempDir(), "nope.yaml"), false)
		require.ErrorContains(t, err, "load config")
	})
}

func TestSectionHydrate(t *testing.T) {
	t.Run("empty file is a no-op", func(t *testing.T) {
		section := &confkit.Section[string]{}
		err := section.Hydrate("/base", func(string) (*string, error) {
			t.Fatal("loader must not run for an empty section")
			return nil, nil
		})
		require.NoError(t, err)
		require.Nil(t, section.Value)
	})

	t.Run("resolves path and stores value", func(t *testing.T) {
		section := &confkit.Section[string]{File: "venue.yaml"}
		loaded := "decoded"

		err := section.Hydrate("/base", func(path string) (*string, error) {
			require.Equal(t, "/base/venue.yaml", path)
			return &loaded, nil
		})
		require.NoError(t, err)
		require.Equal(t, "/base/venue.yaml", section.File)
		require.Same(t, &loaded, section.Value)
	})

	t.Run("loader failure leaves the section untouched", func(t *testing.T) {
		boom := errors.New("boom")
		section := &confkit.Section[int]{File: "venue.yaml"}

		err := section.Hydrate("/base", func(string) (*int, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
		require.Equal(t, "venue.yaml", section.File)
		require.Nil(t, section.Value)
	})
}

func TestProjectRootFindsGoMod(t *testing.T) {
	root, err := confkit.ProjectRoot()
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(root, "go.mod"))

	p, err := confkit.ProjectPath("etc/llm.yaml")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "etc/llm.yaml"), p)
	require.Equal(t, p, confkit.MustProjectPath("etc/llm.yaml"))
}
