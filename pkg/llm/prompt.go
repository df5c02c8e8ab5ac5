package llm

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

// PromptTemplate is a text/template loaded from disk together with the
// sha256 digest of its source, so persisted decisions can be traced back to
// the exact prompt revision that produced them.
type PromptTemplate struct {
	path  string
	funcs template.FuncMap

	mu     sync.RWMutex
	tmpl   *template.Template
	digest string
}

// NewPromptTemplate reads and parses the template at path. Rendering fails
// on any reference to a missing key, so a renamed input surfaces at startup
// validation rather than as a silently broken prompt.
func NewPromptTemplate(path string, funcs template.FuncMap) (*PromptTemplate, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("llm: prompt template path is empty")
	}
	pt := &PromptTemplate{path: path, funcs: funcs}
	if err := pt.load(); err != nil {
		return nil, err
	}
	return pt, nil
}

// Render executes the template against data.
func (pt *PromptTemplate) Render(data any) (string, error) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	var buf bytes.Buffer
	if err := pt.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("llm: render prompt %q: %w", pt.path, err)
	}
	return buf.String(), nil
}

// Reload re-reads the template from disk, replacing content and digest.
func (pt *PromptTemplate) Reload() error {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.load()
}

// Digest is the sha256 hex digest of the template source.
func (pt *PromptTemplate) Digest() string {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.digest
}

func (pt *PromptTemplate) load() error {
	raw, err := os.ReadFile(pt.path)
	if err != nil {
		return fmt.Errorf("llm: read prompt %q: %w", pt.path, err)
	}

	tmpl := template.New(filepath.Base(pt.path)).Option("missingkey=error")
	if len(pt.funcs) > 0 {
		tmpl = tmpl.Funcs(pt.funcs)
	}
	if _, err := tmpl.Parse(string(raw)); err != nil {
		return fmt.Errorf("llm: parse prompt %q: %w", pt.path, err)
	}

	sum := sha256.Sum256(raw)
	pt.tmpl = tmpl
	pt.digest = hex.EncodeToString(sum[:])
	return nil
}
