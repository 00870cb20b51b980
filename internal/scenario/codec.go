package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

const (
	exportDirMode  = 0o755
	exportFileMode = 0o644
)

// FormatFromPath picks the codec from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported scenario file extension %q (want .yaml, .toml or .json)", filepath.Ext(path))
	}
}

func Decode(data []byte, format Format) (Document, error) {
	var doc Document
	var err error
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&doc)
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	default:
		return Document{}, fmt.Errorf("unsupported scenario format %q", format)
	}
	if err != nil {
		return Document{}, fmt.Errorf("decode %s scenario: %w", format, err)
	}
	return doc, nil
}

func Encode(doc Document, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatTOML:
		return toml.Marshal(doc)
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported scenario format %q", format)
	}
}

// ReadFile decodes and validates a scenario file.
func ReadFile(path string) (Document, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read scenario file: %w", err)
	}
	doc, err := Decode(data, format)
	if err != nil {
		return Document{}, err
	}
	if err := doc.Validate(); err != nil {
		return Document{}, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return doc, nil
}

// WriteFile encodes doc by extension and replaces path atomically.
func WriteFile(path string, doc Document) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := Encode(doc, format)
	if err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), exportDirMode); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), ".scenario-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp scenario file: %w", err)
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp scenario file: %w", err)
	}
	if err := tempFile.Chmod(exportFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp scenario file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp scenario file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace scenario file: %w", err)
	}
	cleanup = false
	return nil
}
