package fs

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/strata/pkg/core"
)

// Serializer defines how one record is written to and read from a file.
type Serializer interface {
	// Ext is the file extension, dot included.
	Ext() string
	Marshal(rec core.Record) ([]byte, error)
	Unmarshal(data []byte) (core.Record, error)
}

// Formats supported by NewSerializer.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCBOR = "cbor"
)

// NewSerializer returns the serializer of format. "" selects JSON.
func NewSerializer(format string, strict bool) (Serializer, error) {
	switch format {
	case "", FormatJSON:
		return NewJSONSerializer(strict), nil
	case FormatYAML, "yml":
		return NewYAMLSerializer(), nil
	case FormatCBOR:
		return NewCBORSerializer()
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// JSONSerializer stores records as indented JSON.
type JSONSerializer struct {
	// Strict decodes numbers as json.Number to avoid precision loss.
	Strict bool
}

// NewJSONSerializer creates a JSON serializer.
func NewJSONSerializer(strict bool) *JSONSerializer {
	return &JSONSerializer{Strict: strict}
}

func (s *JSONSerializer) Ext() string { return ".json" }

func (s *JSONSerializer) Marshal(rec core.Record) ([]byte, error) {
	return json.MarshalIndent(map[string]any(rec), "", "  ")
}

func (s *JSONSerializer) Unmarshal(data []byte) (core.Record, error) {
	var payload map[string]any
	decoder := json.NewDecoder(bytes.NewReader(data))
	if s.Strict {
		decoder.UseNumber()
	}
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return core.Record(payload), nil
}

// YAMLSerializer stores records as YAML documents.
type YAMLSerializer struct{}

// NewYAMLSerializer creates a YAML serializer.
func NewYAMLSerializer() *YAMLSerializer {
	return &YAMLSerializer{}
}

func (s *YAMLSerializer) Ext() string { return ".yaml" }

func (s *YAMLSerializer) Marshal(rec core.Record) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(map[string]any(rec)); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *YAMLSerializer) Unmarshal(data []byte) (core.Record, error) {
	var payload map[string]any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return core.Record(payload), nil
}

// CBORSerializer stores records in the compact binary CBOR encoding.
type CBORSerializer struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORSerializer creates a CBOR serializer. Maps decode with string keys
// so nested records look the same as with the text formats.
func NewCBORSerializer() (*CBORSerializer, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dec, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		return nil, err
	}
	return &CBORSerializer{enc: enc, dec: dec}, nil
}

func (s *CBORSerializer) Ext() string { return ".cbor" }

func (s *CBORSerializer) Marshal(rec core.Record) ([]byte, error) {
	return s.enc.Marshal(map[string]any(rec))
}

func (s *CBORSerializer) Unmarshal(data []byte) (core.Record, error) {
	var payload map[string]any
	if err := s.dec.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid cbor: %w", err)
	}
	return core.Record(payload), nil
}
