// File: cmd/output.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func validFormat(format string) error {
	switch strings.ToLower(format) {
	case formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (supported: json, yaml)", format)
	}
}

// encode writes v to w as indented JSON or YAML.
func encode(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return validFormat(format)
	}
}

// writeOutput encodes v to path, or to w when path is empty.
func writeOutput(w io.Writer, path, format string, v any) (err error) {
	if path == "" {
		return encode(w, format, v)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return encode(f, format, v)
}
