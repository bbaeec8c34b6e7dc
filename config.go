package minipy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// File name of the optional project manifest.
const ManifestName = "minipy.toml"

// Manifest is a minipy.toml project configuration.
type Manifest struct {
	Project ManifestProject `toml:"project"`
	Source  ManifestSource  `toml:"source"`
	Log     ManifestLog     `toml:"log"`

	// Directory containing the manifest file, set at load time.
	Dir string `toml:"-"`
}

type ManifestProject struct {
	Name string `toml:"name"`
}

type ManifestSource struct {
	SearchPath []string `toml:"search-path"`
}

type ManifestLog struct {
	Verbosity int `toml:"verbosity"`
}

// LoadManifest parses the manifest file at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var manifest Manifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	manifest.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	logger("minipy.config").Debugf("loaded manifest %s", path)
	return &manifest, nil
}

// FindManifest walks up from dir looking for a minipy.toml file. It returns
// nil without error when none exists.
func FindManifest(dir string) (*Manifest, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, ManifestName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return LoadManifest(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// SearchDirectories returns the configured search path as absolute
// directories, in declared order.
func (self *Manifest) SearchDirectories() []string {
	directories := make([]string, 0, len(self.Source.SearchPath))
	for _, entry := range self.Source.SearchPath {
		if filepath.IsAbs(entry) {
			directories = append(directories, filepath.Clean(entry))
			continue
		}
		directories = append(directories, filepath.Join(self.Dir, entry))
	}
	return directories
}

// Apply configures a Context from the manifest.
func (self *Manifest) Apply(ctx *Context) {
	ctx.SearchPath = append(ctx.SearchPath, self.SearchDirectories()...)
}
