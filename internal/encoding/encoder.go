package encoding

import (
	"bytes"
	"encoding/json"
	"sync"
)

// JSONCodec provides pooled JSON encoding for export payloads and API
// responses, avoiding a fresh buffer allocation per marshal.
type JSONCodec struct {
	buffers sync.Pool
}

// NewJSONCodec creates a codec with a shared buffer pool
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{
		buffers: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Marshal encodes v to compact JSON
func (c *JSONCodec) Marshal(v interface{}) ([]byte, error) {
	buf := c.buffers.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		c.buffers.Put(buf)
	}()

	encoder := json.NewEncoder(buf)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}

	// json.Encoder.Encode appends a trailing newline
	data := buf.Bytes()
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// MarshalIndent encodes v to indented JSON for file exports
func (c *JSONCodec) MarshalIndent(v interface{}) ([]byte, error) {
	buf := c.buffers.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		c.buffers.Put(buf)
	}()

	encoder := json.NewEncoder(buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// Unmarshal decodes data into v
func (c *JSONCodec) Unmarshal(data []byte, v interface{}) error {
	return json.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// Global codec shared by callers that do not carry their own
var globalCodec = NewJSONCodec()

// MarshalJSON marshals data using the shared codec
func MarshalJSON(v interface{}) ([]byte, error) {
	return globalCodec.Marshal(v)
}

// MarshalIndentJSON marshals data as indented JSON using the shared codec
func MarshalIndentJSON(v interface{}) ([]byte, error) {
	return globalCodec.MarshalIndent(v)
}

// UnmarshalJSON unmarshals data using the shared codec
func UnmarshalJSON(data []byte, v interface{}) error {
	return globalCodec.Unmarshal(data, v)
}
