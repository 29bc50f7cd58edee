package main

import (
	"encoding/json"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"
)

// render writes v in the requested format. Values go through JSON first so
// the YAML keys match the JSON field names.
func render(w io.Writer, format string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	switch format {
	case "json", "":
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("render: %w", err)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml":
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("render: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("render: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("render: unknown output format %q (json, yaml)", format)
	}
}

// renderStruct writes a server response.
func renderStruct(w io.Writer, format string, s *structpb.Struct) error {
	if format == "json" || format == "" {
		raw, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
		if err != nil {
			return fmt.Errorf("renderStruct: %w", err)
		}
		_, err = fmt.Fprintln(w, string(raw))
		return err
	}
	return render(w, format, s.AsMap())
}
