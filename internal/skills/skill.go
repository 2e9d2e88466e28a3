// Package skills discovers capability bundles and validates their manifests.
//
// A bundle is a directory holding a SKILL.md file: YAML front-matter between
// "---" fences, followed by a markdown body. Discovery runs once at startup and
// produces an immutable Registry.
package skills

// Manifest is the validated front-matter of a bundle.
type Manifest struct {
	ID            string            `yaml:"name" json:"id"`
	Description   string            `yaml:"description" json:"description"`
	License       string            `yaml:"license,omitempty" json:"license,omitempty"`
	Compatibility string            `yaml:"compatibility,omitempty" json:"compatibility,omitempty"`
	AllowedTools  ToolList          `yaml:"allowed-tools,omitempty" json:"allowed_tools,omitempty"`
	Metadata      map[string]string `yaml:"-" json:"metadata,omitempty"`
}

// Bundle is a manifest together with its body and location.
type Bundle struct {
	Manifest
	// Title is the first heading of the body, or the ID when there is none.
	Title string `json:"title"`
	// Body is the markdown after the front-matter.
	Body string `json:"-"`
	// BasePath is the directory holding SKILL.md, used to resolve files the
	// body refers to.
	BasePath string `json:"base_path"`
	// Path is the manifest file itself.
	Path string `json:"path"`
}
