package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Load reads the manifest at path and builds a catalog from it.
func Load(path string) (*Catalog, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return build(data, path)
}

func build(data []byte, location string) (*Catalog, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", location, err)
	}
	cat, err := NewCatalog(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	return cat, nil
}

// Parse decodes and validates a manifest held in memory.
func Parse(data []byte) (*Catalog, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return NewCatalog(doc)
}

// Decode strictly decodes a YAML or JSON manifest. Unknown fields are errors.
func Decode(data []byte) (*Manifest, error) {
	var doc Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, err
	}
	return &doc, nil
}
