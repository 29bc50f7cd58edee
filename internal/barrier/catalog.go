package barrier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrMissingID is returned when a catalog entry has no id.
var ErrMissingID = errors.New("barrier entry missing id")

// Defaults applied to optional catalog fields.
const (
	DefaultBarrierType = "unknown"
	DefaultDifficulty  = 0.5
	DefaultResistance  = 0.5
)

// catalogSchema checks the document shape only. Field ranges are not
// validated; extra keys are allowed and land in Barrier.Metadata.
const catalogSchema = `{
  "type": "object",
  "properties": {
    "barriers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "barrier_type": {"type": "string"},
          "difficulty": {"type": "number"},
          "resistance": {"type": "number"},
          "goal_state": {"type": "string"}
        }
      }
    }
  }
}`

// knownFields are lifted out of each entry; everything else is metadata.
var knownFields = []string{"id", "description", "barrier_type", "difficulty", "resistance", "goal_state"}

var compiledCatalogSchema *jsonschema.Schema

func init() {
	schemaObj, err := jsonschema.UnmarshalJSON(strings.NewReader(catalogSchema))
	if err != nil {
		panic(fmt.Sprintf("barrier: invalid catalog schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("catalog.json", schemaObj); err != nil {
		panic(fmt.Sprintf("barrier: add catalog schema: %v", err))
	}
	sch, err := c.Compile("catalog.json")
	if err != nil {
		panic(fmt.Sprintf("barrier: compile catalog schema: %v", err))
	}
	compiledCatalogSchema = sch
}

// ParseCatalog decodes a {"barriers": [...]} document into barriers,
// preserving document order. A document without a barriers key is empty.
func ParseCatalog(data []byte) ([]Barrier, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ParseCatalog: %w", err)
	}
	if err := compiledCatalogSchema.Validate(doc); err != nil {
		if hasEntryWithoutID(doc) {
			return nil, fmt.Errorf("ParseCatalog: %w", ErrMissingID)
		}
		return nil, fmt.Errorf("ParseCatalog: schema: %w", err)
	}

	var raw struct {
		Barriers []map[string]json.RawMessage `json:"barriers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ParseCatalog: %w", err)
	}

	barriers := make([]Barrier, 0, len(raw.Barriers))
	for i, entry := range raw.Barriers {
		b, err := parseEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("ParseCatalog: entry %d: %w", i, err)
		}
		barriers = append(barriers, b)
	}
	return barriers, nil
}

// LoadCatalog reads a catalog document from r.
func LoadCatalog(r io.Reader) ([]Barrier, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("LoadCatalog: %w", err)
	}
	return ParseCatalog(data)
}

// LoadCatalogFile reads a catalog document from disk.
func LoadCatalogFile(path string) ([]Barrier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadCatalogFile: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadCatalog(f)
}

func parseEntry(entry map[string]json.RawMessage) (Barrier, error) {
	b := Barrier{
		BarrierType: DefaultBarrierType,
		Difficulty:  DefaultDifficulty,
		Resistance:  DefaultResistance,
	}

	rawID, ok := entry["id"]
	if !ok {
		return b, ErrMissingID
	}
	if err := json.Unmarshal(rawID, &b.ID); err != nil {
		return b, fmt.Errorf("id: %w", err)
	}

	fields := []struct {
		key string
		dst any
	}{
		{"description", &b.Description},
		{"barrier_type", &b.BarrierType},
		{"difficulty", &b.Difficulty},
		{"resistance", &b.Resistance},
		{"goal_state", &b.GoalState},
	}
	for _, f := range fields {
		v, ok := entry[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return b, fmt.Errorf("%s: %w", f.key, err)
		}
	}

	b.Metadata = make(map[string]any, len(entry))
	for k, v := range entry {
		if isKnownField(k) {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return b, fmt.Errorf("%s: %w", k, err)
		}
		b.Metadata[k] = val
	}
	return b, nil
}

func isKnownField(k string) bool {
	for _, f := range knownFields {
		if f == k {
			return true
		}
	}
	return false
}

func hasEntryWithoutID(doc any) bool {
	obj, ok := doc.(map[string]any)
	if !ok {
		return false
	}
	entries, ok := obj["barriers"].([]any)
	if !ok {
		return false
	}
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := m["id"]; !ok {
			return true
		}
	}
	return false
}
