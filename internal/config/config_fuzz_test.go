package config

import (
	"testing"
)

// FuzzParseConfig tests parseConfig with arbitrary YAML input
func FuzzParseConfig(f *testing.F) {
	f.Add([]byte("naming:\n  packaging_revision: \"1\"\n"))
	f.Add([]byte("{}"))
	f.Add([]byte(""))
	f.Add([]byte("invalid: yaml: content: ["))
	f.Add([]byte("---\nlogging:\n  level: warn"))
	f.Add([]byte("naming: null\nindex: null"))
	f.Add([]byte("archive:\n  alternate_prefixes: [a-, b_]\n"))
	f.Add([]byte("work_dir: &a /tmp\nproject_dir: *a\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		cfg, err := parseConfig(data, DefaultConfig())
		if err != nil {
			if cfg != nil {
				t.Error("Expected nil config when error occurred")
			}
			return
		}
		if cfg == nil {
			t.Error("Expected non-nil config when no error occurred")
		}
	})
}
