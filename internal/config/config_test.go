package config

import (
	"os"
	"path/filepath"
	"testing"

	mnemoerrors "github.com/hpungsan/mnemo/internal/errors"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DirectLimit != 2500 {
		t.Errorf("DirectLimit = %d, want 2500", cfg.DirectLimit)
	}
	if cfg.SegmentLimit != 4500 {
		t.Errorf("SegmentLimit = %d, want 4500", cfg.SegmentLimit)
	}
	if cfg.SubjectID != DefaultSubjectID {
		t.Errorf("SubjectID = %q, want %q", cfg.SubjectID, DefaultSubjectID)
	}
	if !cfg.NonBlocking() {
		t.Error("NonBlocking() = false, want true by default")
	}
	if cfg.Enabled() {
		t.Error("Enabled() = true without api key, want false")
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"direct_limit": 500, "async_storage": false}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DirectLimit != 500 {
		t.Errorf("DirectLimit = %d, want 500", cfg.DirectLimit)
	}
	if cfg.NonBlocking() {
		t.Error("NonBlocking() = true, want false from file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoadWithRepo_RepoOverridesGlobal(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()
	writeConfig(t, globalDir, `{"subject_id": "global", "disabled_tools": ["memory_ingest"]}`)
	writeConfig(t, filepath.Join(repoRoot, ".mnemo"), `{"subject_id": "repo", "disabled_tools": ["skill_list"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.SubjectID != "repo" {
		t.Errorf("SubjectID = %q, want %q", cfg.SubjectID, "repo")
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools = %v, want 2 entries", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()
	writeConfig(t, filepath.Join(repoRoot, ".mnemo"), `{"search_limit": 3}`)

	deep := filepath.Join(repoRoot, "a", "b", "c")
	if err := os.MkdirAll(deep, 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, deep)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.SearchLimit != 3 {
		t.Errorf("SearchLimit = %d, want 3", cfg.SearchLimit)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if got := FindRepoConfig(t.TempDir()); got != "" {
		t.Errorf("FindRepoConfig() = %q, want empty", got)
	}
	if got := FindRepoConfig(""); got != "" {
		t.Errorf("FindRepoConfig(\"\") = %q, want empty", got)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg, err := ApplyEnv(DefaultConfig(), envMap(map[string]string{
		EnvAPIKey:         "secret",
		EnvSubjectID:      "alice",
		EnvConversationID: "conv-override",
		EnvDebug:          "true",
		EnvAsyncStorage:   "false",
		EnvStore:          "SQLite",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.APIKey != "secret" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "secret")
	}
	if cfg.SubjectID != "alice" {
		t.Errorf("SubjectID = %q, want %q", cfg.SubjectID, "alice")
	}
	if cfg.ConversationID != "conv-override" {
		t.Errorf("ConversationID = %q, want %q", cfg.ConversationID, "conv-override")
	}
	if !cfg.Verbose() {
		t.Error("Verbose() = false, want true")
	}
	if cfg.NonBlocking() {
		t.Error("NonBlocking() = true, want false")
	}
	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendSQLite)
	}
	if !cfg.Enabled() {
		t.Error("Enabled() = false, want true")
	}
}

func TestApplyEnv_EmptyLeavesBase(t *testing.T) {
	base := DefaultConfig()
	base.SubjectID = "from-file"

	cfg, err := ApplyEnv(base, envMap(nil))
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.SubjectID != "from-file" {
		t.Errorf("SubjectID = %q, want %q", cfg.SubjectID, "from-file")
	}
	if !cfg.NonBlocking() {
		t.Error("NonBlocking() = false, want default true")
	}
}

func TestApplyEnv_InvalidBoolean(t *testing.T) {
	_, err := ApplyEnv(DefaultConfig(), envMap(map[string]string{EnvAsyncStorage: "maybe"}))
	if !mnemoerrors.Is(err, mnemoerrors.ErrInvalidConfig) {
		t.Fatalf("ApplyEnv() error = %v, want INVALID_CONFIG", err)
	}
}

func TestApplyEnv_SkillsPath(t *testing.T) {
	raw := "/one" + string(os.PathListSeparator) + "/two"
	cfg, err := ApplyEnv(DefaultConfig(), envMap(map[string]string{EnvSkillsPath: raw}))
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if len(cfg.SkillsDirs) != 2 || cfg.SkillsDirs[0] != "/one" || cfg.SkillsDirs[1] != "/two" {
		t.Errorf("SkillsDirs = %v, want [/one /two]", cfg.SkillsDirs)
	}
}

func TestResolve_DefaultSkillsDirs(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()
	writeConfig(t, filepath.Join(repoRoot, ".mnemo"), `{}`)

	cfg, err := Resolve(globalDir, repoRoot, envMap(map[string]string{EnvSkillsPath: "/custom"}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []string{
		"/custom",
		filepath.Join(repoRoot, ".mnemo", "skills"),
		filepath.Join(globalDir, "skills"),
	}
	if len(cfg.SkillsDirs) != len(want) {
		t.Fatalf("SkillsDirs = %v, want %v", cfg.SkillsDirs, want)
	}
	for i := range want {
		if cfg.SkillsDirs[i] != want[i] {
			t.Errorf("SkillsDirs[%d] = %q, want %q", i, cfg.SkillsDirs[i], want[i])
		}
	}
}

func TestResolve_InvalidLimits(t *testing.T) {
	globalDir := t.TempDir()
	writeConfig(t, globalDir, `{"segment_limit": -1}`)

	_, err := Resolve(globalDir, "", envMap(nil))
	if !mnemoerrors.Is(err, mnemoerrors.ErrInvalidConfig) {
		t.Fatalf("Resolve() error = %v, want INVALID_CONFIG", err)
	}
}

func TestValidate_Limits(t *testing.T) {
	tests := []struct {
		key    string
		mutate func(*Config)
	}{
		{"direct_limit", func(c *Config) { c.DirectLimit = 0 }},
		{"fact_max_chars", func(c *Config) { c.FactMaxChars = -1 }},
		{"query_max_chars", func(c *Config) { c.QueryMaxChars = 0 }},
		{"search_limit", func(c *Config) { c.SearchLimit = -5 }},
		{"request_timeout_seconds", func(c *Config) { c.RequestTimeoutSeconds = -1 }},
		{"queue_warn_depth", func(c *Config) { c.QueueWarnDepth = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			mErr := mnemoerrors.From(err)
			if mErr == nil || mErr.Code != mnemoerrors.ErrInvalidConfig {
				t.Fatalf("Validate() error = %v, want INVALID_CONFIG", err)
			}
			if mErr.Details["key"] != tt.key {
				t.Errorf("Details[key] = %v, want %q", mErr.Details["key"], tt.key)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.QueueWarnDepth = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with queue_warn_depth 0 error = %v, want nil", err)
	}
}

func TestResolve_NegativeSearchLimit(t *testing.T) {
	globalDir := t.TempDir()
	writeConfig(t, globalDir, `{"search_limit": -3}`)

	_, err := Resolve(globalDir, "", envMap(nil))
	if !mnemoerrors.Is(err, mnemoerrors.ErrInvalidConfig) {
		t.Fatalf("Resolve() error = %v, want INVALID_CONFIG", err)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{SearchLimit: 10, BaseURL: "https://a"}
	overlay := &Config{SearchLimit: 5}

	result := Merge(base, overlay)
	if result.SearchLimit != 5 {
		t.Errorf("SearchLimit = %d, want 5", result.SearchLimit)
	}
	if result.BaseURL != "https://a" {
		t.Errorf("BaseURL = %q, want %q", result.BaseURL, "https://a")
	}
}

func boolPtr(b bool) *bool { return &b }

func TestMerge_TriStateBooleans(t *testing.T) {
	result := Merge(&Config{Debug: boolPtr(true)}, &Config{Debug: boolPtr(false)})
	if result.Verbose() {
		t.Error("Verbose() = true, want overlay false to win")
	}

	result = Merge(&Config{Debug: boolPtr(true)}, &Config{})
	if !result.Verbose() {
		t.Error("Verbose() = false, want base true kept when overlay unset")
	}

	if (&Config{}).Verbose() {
		t.Error("Verbose() = true for unset Debug, want false")
	}
}

func TestResolve_EnvDebugFalseOverridesFile(t *testing.T) {
	globalDir := t.TempDir()
	writeConfig(t, globalDir, `{"debug": true}`)

	cfg, err := Resolve(globalDir, "", envMap(map[string]string{EnvDebug: "false"}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Verbose() {
		t.Error("Verbose() = true, want MNEMO_DEBUG=false to override the file")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTypes: []string{"skill", " memory "}}
	overlay := &Config{DisabledTypes: []string{"memory", ""}}

	result := Merge(base, overlay)
	if len(result.DisabledTypes) != 2 {
		t.Fatalf("DisabledTypes = %v, want 2 entries", result.DisabledTypes)
	}
	if result.DisabledTypes[0] != "skill" || result.DisabledTypes[1] != "memory" {
		t.Errorf("DisabledTypes = %v, want [skill memory]", result.DisabledTypes)
	}
}
