package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	mnemoerrors "github.com/hpungsan/mnemo/internal/errors"
)

// Backend names accepted by Config.Backend.
const (
	BackendRemote = "remote"
	BackendSQLite = "sqlite"
)

// DefaultSubjectID is the placeholder subject used when none is configured.
const DefaultSubjectID = "mnemo-user"

// Environment keys recognized by ApplyEnv.
const (
	EnvAPIKey         = "MNEMO_API_KEY"
	EnvBaseURL        = "MNEMO_BASE_URL"
	EnvSubjectID      = "MNEMO_SUBJECT_ID"
	EnvConversationID = "MNEMO_CONVERSATION_ID"
	EnvDebug          = "MNEMO_DEBUG"
	EnvAsyncStorage   = "MNEMO_ASYNC_STORAGE"
	EnvStore          = "MNEMO_STORE"
	EnvSkillsPath     = "MNEMO_SKILLS_PATH"
)

// Config holds application configuration.
type Config struct {
	// APIKey authenticates against the remote memory service.
	// An empty key disables the memory layer unless Backend is "sqlite".
	APIKey string `json:"api_key,omitempty"`

	// BaseURL is the remote memory service endpoint.
	BaseURL string `json:"base_url,omitempty"`

	// Backend selects the store implementation: "remote" or "sqlite".
	Backend string `json:"backend,omitempty"`

	// SubjectID is the long-lived memory owner.
	SubjectID string `json:"subject_id,omitempty"`

	// ConversationID overrides conversation id derivation when set.
	ConversationID string `json:"conversation_id,omitempty"`

	// Debug enables verbose logging. nil means the default (false).
	Debug *bool `json:"debug,omitempty"`

	// AsyncStorage selects non-blocking ingestion. nil means the default (true).
	AsyncStorage *bool `json:"async_storage,omitempty"`

	// DirectLimit is the largest message (in characters) written through the
	// conversational append path.
	DirectLimit int `json:"direct_limit,omitempty"`

	// SegmentLimit is the maximum segment size for oversized messages.
	SegmentLimit int `json:"segment_limit,omitempty"`

	// FactMaxChars bounds the remember operation input.
	FactMaxChars int `json:"fact_max_chars,omitempty"`

	// QueryMaxChars bounds the recall operation input.
	QueryMaxChars int `json:"query_max_chars,omitempty"`

	// SearchLimit is the number of facts returned by recall.
	SearchLimit int `json:"search_limit,omitempty"`

	// QueueWarnDepth is the soft backpressure threshold of the write queue.
	QueueWarnDepth int `json:"queue_warn_depth,omitempty"`

	// RequestTimeoutSeconds bounds each remote store request.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// SkillsDirs are scanned for capability bundles, in order.
	SkillsDirs []string `json:"skills_dirs,omitempty"`

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `json:"metrics_addr,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "memory", "skill". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:               "https://api.mnemo.dev",
		Backend:               BackendRemote,
		SubjectID:             DefaultSubjectID,
		DirectLimit:           2500,
		SegmentLimit:          4500,
		FactMaxChars:          4500,
		QueryMaxChars:         400,
		SearchLimit:           10,
		QueueWarnDepth:        32,
		RequestTimeoutSeconds: 30,
	}
}

// Enabled reports whether the memory layer should run.
func (c *Config) Enabled() bool {
	return c.APIKey != "" || c.Backend == BackendSQLite
}

// Verbose reports whether debug logging is on.
func (c *Config) Verbose() bool {
	return c.Debug != nil && *c.Debug
}

// NonBlocking reports whether ingestion returns before writes complete.
func (c *Config) NonBlocking() bool {
	if c.AsyncStorage == nil {
		return true
	}
	return *c.AsyncStorage
}

// Validate checks values that cannot be defaulted away.
func (c *Config) Validate() error {
	if c.DirectLimit <= 0 {
		return mnemoerrors.NewInvalidConfig("direct_limit", "must be positive")
	}
	if c.SegmentLimit <= 0 {
		return mnemoerrors.NewInvalidConfig("segment_limit", "must be positive")
	}
	if c.FactMaxChars <= 0 {
		return mnemoerrors.NewInvalidConfig("fact_max_chars", "must be positive")
	}
	if c.QueryMaxChars <= 0 {
		return mnemoerrors.NewInvalidConfig("query_max_chars", "must be positive")
	}
	if c.SearchLimit <= 0 {
		return mnemoerrors.NewInvalidConfig("search_limit", "must be positive")
	}
	if c.RequestTimeoutSeconds <= 0 {
		return mnemoerrors.NewInvalidConfig("request_timeout_seconds", "must be positive")
	}
	if c.QueueWarnDepth < 0 {
		return mnemoerrors.NewInvalidConfig("queue_warn_depth", "must not be negative")
	}
	if c.Backend != BackendRemote && c.Backend != BackendSQLite {
		return mnemoerrors.NewInvalidConfig("backend", "must be one of: remote, sqlite")
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.mnemo.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.mnemo) and repo (.mnemo) directories.
// Repo config is found by walking upward from startDir to find the nearest .mnemo/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// Resolve builds the effective configuration: defaults, global file, repo file,
// then environment. Default skill directories are appended last.
func Resolve(globalDir, startDir string, getenv func(string) string) (*Config, error) {
	cfg, err := LoadWithRepo(globalDir, startDir)
	if err != nil {
		return nil, err
	}
	cfg, err = ApplyEnv(cfg, getenv)
	if err != nil {
		return nil, err
	}

	defaults := []string{filepath.Join(globalDir, "skills")}
	if repoConfig := FindRepoConfig(startDir); repoConfig != "" {
		defaults = append([]string{filepath.Join(filepath.Dir(repoConfig), "skills")}, defaults...)
	}
	cfg.SkillsDirs = mergeStringSlice(cfg.SkillsDirs, defaults)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment values onto cfg and returns the result.
// Malformed boolean values are configuration errors.
func ApplyEnv(cfg *Config, getenv func(string) string) (*Config, error) {
	overlay := &Config{
		APIKey:         strings.TrimSpace(getenv(EnvAPIKey)),
		BaseURL:        strings.TrimSpace(getenv(EnvBaseURL)),
		Backend:        strings.ToLower(strings.TrimSpace(getenv(EnvStore))),
		SubjectID:      strings.TrimSpace(getenv(EnvSubjectID)),
		ConversationID: strings.TrimSpace(getenv(EnvConversationID)),
	}

	if raw := strings.TrimSpace(getenv(EnvDebug)); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, mnemoerrors.NewInvalidConfig(EnvDebug, "expected a boolean")
		}
		overlay.Debug = &v
	}
	if raw := strings.TrimSpace(getenv(EnvAsyncStorage)); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, mnemoerrors.NewInvalidConfig(EnvAsyncStorage, "expected a boolean")
		}
		overlay.AsyncStorage = &v
	}
	if raw := getenv(EnvSkillsPath); raw != "" {
		overlay.SkillsDirs = filepath.SplitList(raw)
	}

	return Merge(cfg, overlay), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .mnemo/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".mnemo", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.APIKey = firstString(overlay.APIKey, base.APIKey)
	result.BaseURL = firstString(overlay.BaseURL, base.BaseURL)
	result.Backend = firstString(overlay.Backend, base.Backend)
	result.SubjectID = firstString(overlay.SubjectID, base.SubjectID)
	result.ConversationID = firstString(overlay.ConversationID, base.ConversationID)
	result.MetricsAddr = firstString(overlay.MetricsAddr, base.MetricsAddr)

	result.DirectLimit = firstInt(overlay.DirectLimit, base.DirectLimit)
	result.SegmentLimit = firstInt(overlay.SegmentLimit, base.SegmentLimit)
	result.FactMaxChars = firstInt(overlay.FactMaxChars, base.FactMaxChars)
	result.QueryMaxChars = firstInt(overlay.QueryMaxChars, base.QueryMaxChars)
	result.SearchLimit = firstInt(overlay.SearchLimit, base.SearchLimit)
	result.QueueWarnDepth = firstInt(overlay.QueueWarnDepth, base.QueueWarnDepth)
	result.RequestTimeoutSeconds = firstInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds)

	// Tri-state: overlay wins if set
	result.Debug = firstBool(overlay.Debug, base.Debug)
	result.AsyncStorage = firstBool(overlay.AsyncStorage, base.AsyncStorage)

	// Arrays: merge and deduplicate (overlay first so its directories are scanned first)
	result.SkillsDirs = mergeStringSlice(overlay.SkillsDirs, base.SkillsDirs)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstString(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstBool(a, b *bool) *bool {
	if a == nil {
		a = b
	}
	if a == nil {
		return nil
	}
	v := *a
	return &v
}

func firstInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
