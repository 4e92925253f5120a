package container

import (
	"fmt"
	"io/fs"

	"github.com/vnykmshr/cacheboot/pkg/settings"
)

// LoadManifest reads a service manifest from fsys. Manifests commonly refer
// to services defined elsewhere, so references are resolved by Compile.
func LoadManifest(fsys fs.FS, path string) (*Graph, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	t, err := settings.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	g, err := FromTree(t)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest %s: %w", path, err)
	}
	return g, nil
}
