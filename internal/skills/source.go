package skills

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// Source is where bundles are discovered. FS is scanned for SKILL.md files;
// BasePath maps a directory inside FS to the path reported to the
// conversation for that bundle.
type Source interface {
	FS() fs.FS
	BasePath(dir string) string
	String() string
}

type dirSource struct {
	root string
}

// DirSource returns a Source over a directory on disk.
func DirSource(root string) Source {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return dirSource{root: root}
}

func (s dirSource) FS() fs.FS {
	return os.DirFS(s.root)
}

func (s dirSource) BasePath(dir string) string {
	return filepath.Join(s.root, filepath.FromSlash(dir))
}

func (s dirSource) String() string {
	return s.root
}

type fsSource struct {
	fsys fs.FS
	root string
}

// FSSource returns a Source over any fs.FS, such as an embedded tree or a
// testing/fstest.MapFS. Base paths are reported relative to root.
func FSSource(fsys fs.FS, root string) Source {
	return fsSource{fsys: fsys, root: root}
}

func (s fsSource) FS() fs.FS {
	return s.fsys
}

func (s fsSource) BasePath(dir string) string {
	return path.Join(s.root, dir)
}

func (s fsSource) String() string {
	return s.root
}
