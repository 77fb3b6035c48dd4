package registry

import (
	_ "embed"
	"os"

	"github.com/cadencehq/cadence/errors"
)

//go:embed types.yaml
var builtinTypes []byte

// Default returns a registry holding only the built-in types.
func Default() *Registry {
	r, err := Parse(builtinTypes)
	if err != nil {
		// The embedded file is part of the build; failing to parse it is
		// a programming error.
		panic(errors.Wrap(err, "built-in type registry is invalid"))
	}
	return r
}

// Load returns the registry for the given configuration. An empty path
// yields the built-in types; otherwise the external file extends and
// overrides them by type name.
func Load(path string) (*Registry, error) {
	r := Default()
	if path == "" {
		return r, nil
	}
	if err := r.mergeFile(path); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the external file and swaps the descriptor set.
func (r *Registry) Reload(path string) error {
	return r.mergeFile(path)
}

func (r *Registry) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading type registry %s", path)
	}

	base, err := Parse(builtinTypes)
	if err != nil {
		return err
	}
	ext, err := Parse(data)
	if err != nil {
		return errors.Wrapf(err, "parsing type registry %s", path)
	}

	merged := base.All()
	index := make(map[string]int, len(merged))
	for i, d := range merged {
		index[d.Name] = i
	}
	for _, d := range ext.All() {
		if i, ok := index[d.Name]; ok {
			merged[i] = d
		} else {
			merged = append(merged, d)
		}
	}

	return r.replace(merged)
}
