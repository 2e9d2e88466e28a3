package skills

import (
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hpungsan/mnemo/internal/observe"
)

// ManifestName is the file that marks a bundle directory.
const ManifestName = "SKILL.md"

// Rejection records a manifest that failed to load.
type Rejection struct {
	Path string
	Err  error
}

// Duplicate records a bundle skipped because its ID was already taken.
type Duplicate struct {
	ID   string
	Path string
	// Kept is the path of the bundle that won.
	Kept string
}

// Registry is the immutable set of discovered bundles. It is safe for
// concurrent reads.
type Registry struct {
	bundles    []Bundle
	byID       map[string]int
	rejected   []Rejection
	duplicates []Duplicate
}

// Discover scans sources in order and builds a Registry. Invalid manifests
// are skipped with a warning; when two bundles share an ID the first one
// discovered wins. Unreadable sources are logged and skipped.
func Discover(obs *observe.Observer, sources ...Source) *Registry {
	if obs == nil {
		obs = observe.Discard()
	}
	r := &Registry{byID: make(map[string]int)}

	for _, src := range sources {
		fsys := src.FS()
		matches, err := doublestar.Glob(fsys, "**/"+ManifestName)
		if err != nil {
			obs.Log().Warn().Str("source", src.String()).Err(err).Msg("skill source unreadable")
			continue
		}
		sort.Strings(matches)

		for _, file := range matches {
			b, err := load(fsys, src, file)
			if err != nil {
				r.rejected = append(r.rejected, Rejection{Path: src.BasePath(file), Err: err})
				obs.Log().Warn().Str("path", src.BasePath(file)).Err(err).Msg("skipping invalid skill")
				continue
			}
			if i, taken := r.byID[b.ID]; taken {
				d := Duplicate{ID: b.ID, Path: b.Path, Kept: r.bundles[i].Path}
				r.duplicates = append(r.duplicates, d)
				obs.Log().Warn().
					Str("skill", b.ID).
					Str("path", d.Path).
					Str("kept", d.Kept).
					Err(ErrDuplicateID).
					Msg("skipping duplicate skill")
				continue
			}
			r.byID[b.ID] = len(r.bundles)
			r.bundles = append(r.bundles, b)
		}
	}

	obs.Log().Info().
		Int("skills", len(r.bundles)).
		Int("rejected", len(r.rejected)).
		Int("duplicates", len(r.duplicates)).
		Msg("skills discovered")
	return r
}

func load(fsys fs.FS, src Source, file string) (Bundle, error) {
	content, err := fs.ReadFile(fsys, file)
	if err != nil {
		return Bundle{}, fmt.Errorf("read %s: %w", ManifestName, err)
	}
	m, body, err := ParseManifest(string(content))
	if err != nil {
		return Bundle{}, err
	}
	title := Title(body)
	if title == "" {
		title = m.ID
	}
	return Bundle{
		Manifest: m,
		Title:    title,
		Body:     body,
		BasePath: src.BasePath(path.Dir(file)),
		Path:     src.BasePath(file),
	}, nil
}

// Get returns the bundle with the given ID.
func (r *Registry) Get(id string) (Bundle, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Bundle{}, false
	}
	return r.bundles[i], true
}

// List returns the bundles in discovery order.
func (r *Registry) List() []Bundle {
	return append([]Bundle(nil), r.bundles...)
}

// Len returns the number of registered bundles.
func (r *Registry) Len() int {
	return len(r.bundles)
}

// Rejected returns the manifests that failed to load.
func (r *Registry) Rejected() []Rejection {
	return append([]Rejection(nil), r.rejected...)
}

// Duplicates returns the bundles skipped for reusing an ID.
func (r *Registry) Duplicates() []Duplicate {
	return append([]Duplicate(nil), r.duplicates...)
}
