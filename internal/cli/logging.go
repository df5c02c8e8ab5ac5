package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/internal/config"
	"arena-api/pkg/confkit"
)

// ConfigSummaryLines renders the effective configuration as one line per
// concern, with secrets reduced to present/absent.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	rows := []struct {
		label string
		value string
	}{
		{"Environment", cfg.Env},
		{"Data path", cfg.DataPath},
		{"Postgres", onOff(cfg.Postgres.DSN != "")},
		{"Redis", onOff(strings.TrimSpace(cfg.Redis.Host) != "")},
		{"TTL (short/medium/long)", fmt.Sprintf("%ds / %ds / %ds", cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long)},
		{"LLM config", sectionSource(cfg.LLM)},
		{"Venue config", sectionSource(cfg.Venue)},
		{"Market config", sectionSource(cfg.Market)},
		{"Arena config", sectionSource(cfg.Arena)},
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.label+": "+row.value)
	}
	return lines
}

// LogConfigSummary writes the configuration summary through logx at startup.
func LogConfigSummary(cfg *config.Config) {
	logx.Info("configuration summary")
	for _, line := range ConfigSummaryLines(cfg) {
		logx.Infof("config • %s", line)
	}
}

func onOff(configured bool) string {
	if configured {
		return "configured"
	}
	return "not configured"
}

// sectionSource names where a section came from: its file, inline values, or
// nothing at all.
func sectionSource[T any](section confkit.Section[T]) string {
	if strings.TrimSpace(section.File) != "" {
		return section.File
	}
	if section.Value != nil {
		return "inline"
	}
	return "not configured"
}
