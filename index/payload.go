package index

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"github.com/velasearch/vela/errkind"
)

// PayloadFormat selects how ParsePayload interprets raw bytes (§4.3 step 1
// "newline-delimited JSON / JSON array / CSV").
type PayloadFormat int

const (
	NDJSON PayloadFormat = iota
	JSONArray
	CSV
)

// ParsePayload extracts one ordered-field record per document. Field
// order within a record is preserved in Document.Order, which
// DerivePrimaryKey scans for candidate id fields.
func ParsePayload(format PayloadFormat, raw []byte) ([]Document, error) {
	switch format {
	case NDJSON:
		return parseNDJSON(raw)
	case JSONArray:
		return parseJSONArray(raw)
	case CSV:
		return parseCSV(raw)
	default:
		return nil, errkind.New(errkind.IoError, "unknown payload format %d", format)
	}
}

// Document is one parsed record: field names in their original order,
// paired with already-JSON-marshalable values.
type Document struct {
	Order  []string
	Fields map[string]any
}

func newDocument() Document {
	return Document{Fields: map[string]any{}}
}

func (d *Document) set(name string, value any) {
	if _, exists := d.Fields[name]; !exists {
		d.Order = append(d.Order, name)
	}
	d.Fields[name] = value
}

func parseNDJSON(raw []byte) ([]Document, error) {
	var docs []Document
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		d, err := decodeOrderedObject(line)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, errkind.Wrap(errkind.IoError, err, "reading ndjson payload")
	}
	return docs, nil
}

func parseJSONArray(raw []byte) ([]Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, errkind.Wrap(errkind.IoError, err, "reading json array payload")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, errkind.New(errkind.IoError, "expected a json array payload")
	}
	var docs []Document
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, errkind.Wrap(errkind.IoError, err, "reading json array element")
		}
		d, err := decodeOrderedObject(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// decodeOrderedObject decodes one JSON object while recording field order,
// using json.Decoder's token stream directly rather than unmarshaling into
// a map (which loses order).
func decodeOrderedObject(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return Document{}, errkind.Wrap(errkind.IoError, err, "decoding document")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Document{}, errkind.New(errkind.IoError, "expected a json object per document")
	}
	d := newDocument()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Document{}, errkind.Wrap(errkind.IoError, err, "decoding document field name")
		}
		key := keyTok.(string)
		var val any
		if err := dec.Decode(&val); err != nil {
			return Document{}, errkind.Wrap(errkind.IoError, err, "decoding document field value")
		}
		d.set(key, val)
	}
	return d, nil
}

func parseCSV(raw []byte) ([]Document, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errkind.Wrap(errkind.IoError, err, "reading csv header")
	}
	names := make([]string, len(header))
	for i, h := range header {
		// CSV headers carry an optional ":type" suffix (field:number); we
		// only need the field name for the generic pipeline.
		names[i] = strings.SplitN(h, ":", 2)[0]
	}

	var docs []Document
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errkind.Wrap(errkind.IoError, err, "reading csv row")
		}
		d := newDocument()
		for i, v := range record {
			if i >= len(names) {
				break
			}
			d.set(names[i], v)
		}
		docs = append(docs, d)
	}
	return docs, nil
}
