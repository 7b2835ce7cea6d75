package catalog

import (
	_ "embed"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// File is the on-disk catalog: initial view, base layers and categories.
type File struct {
	View       View        `yaml:"view"`
	BaseLayers []BaseLayer `yaml:"base_layers"`
	Categories []Category  `yaml:"categories"`
}

// Load reads a YAML catalog from path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, errors.Wrapf(err, "reading catalog %s", path)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, errors.Wrapf(err, "catalog %s", path)
	}
	return f, nil
}

// Parse decodes a YAML catalog and validates its base layers.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, errors.Wrap(err, "parsing yaml")
	}

	seen := make(map[string]bool, len(f.BaseLayers))
	for _, b := range f.BaseLayers {
		if b.Key == "" || b.URL == "" {
			return File{}, &ErrInvalid{Key: b.Key, Reason: "base layer needs key and url"}
		}
		if seen[b.Key] {
			return File{}, &ErrInvalid{Key: b.Key, Reason: "duplicate base layer key"}
		}
		seen[b.Key] = true
	}
	if f.View.Base != "" && !seen[f.View.Base] {
		return File{}, &ErrNotFound{Type: "base layer", Key: f.View.Base}
	}
	return f, nil
}

// Default returns the embedded catalog.
func Default() (File, error) {
	return Parse(defaultYAML)
}

// Tree validates the categories and builds the initial tree.
func (f File) Tree() (Tree, error) {
	return New(f.Categories)
}

// BaseLayer resolves a base layer by key.
func (f File) BaseLayer(key string) (BaseLayer, bool) {
	for _, b := range f.BaseLayers {
		if b.Key == key {
			return b, true
		}
	}
	return BaseLayer{}, false
}
