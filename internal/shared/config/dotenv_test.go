package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseEnvLine(t *testing.T) {
	tests := []struct {
		line, key, val string
		ok             bool
	}{
		{line: "PORT=9090", key: "PORT", val: "9090", ok: true},
		{line: "export APP_ID=variance", key: "APP_ID", val: "variance", ok: true},
		{line: `LLM_MODEL="gemini-2.0-flash"`, key: "LLM_MODEL", val: "gemini-2.0-flash", ok: true},
		{line: "GREETING='a # b'", key: "GREETING", val: "a # b", ok: true},
		{line: "ENV=dev # local only", key: "ENV", val: "dev", ok: true},
		{line: "# comment"},
		{line: "   "},
		{line: "NOEQUALS"},
		{line: "BAD KEY=1"},
	}
	for _, tt := range tests {
		key, val, ok := parseEnvLine(tt.line)
		if ok != tt.ok || key != tt.key || val != tt.val {
			t.Fatalf("parseEnvLine(%q) = %q, %q, %v", tt.line, key, val, ok)
		}
	}
}

func TestLoadEnvFilesKeepsExistingEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "DOTENV_TEST_SET=from-file\nDOTENV_TEST_NEW=fresh\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("DOTENV_TEST_SET", "from-env")
	t.Setenv("DOTENV_TEST_NEW", "")
	os.Unsetenv("DOTENV_TEST_NEW")

	applied := loadEnvFiles(filepath.Join(dir, "missing.env"), path)
	if applied != 1 {
		t.Fatalf("expected 1 applied variable, got %d", applied)
	}
	if got := os.Getenv("DOTENV_TEST_SET"); got != "from-env" {
		t.Fatalf("environment should win, got %q", got)
	}
	if got := os.Getenv("DOTENV_TEST_NEW"); got != "fresh" {
		t.Fatalf("expected file value, got %q", got)
	}
}
