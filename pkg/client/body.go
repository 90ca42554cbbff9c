package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"reflect"
	"sort"
	"strings"
)

// BodyKind classifies a request body by shape. It is decided once, when the
// body enters the client, and the encoder dispatches on it.
type BodyKind int

const (
	BodyNone BodyKind = iota
	// BodyRaw is already wire-ready: an io.Reader, []byte or json.RawMessage.
	BodyRaw
	// BodyFormContainer is a *FormData built by the caller.
	BodyFormContainer
	// BodyFile is a File.
	BodyFile
	// BodyScalar is a string, bool or number.
	BodyScalar
	// BodyMapping is any structured value: map, struct or slice.
	BodyMapping
)

func (k BodyKind) String() string {
	switch k {
	case BodyNone:
		return "none"
	case BodyRaw:
		return "raw"
	case BodyFormContainer:
		return "form"
	case BodyFile:
		return "file"
	case BodyScalar:
		return "scalar"
	case BodyMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// File is binary file-like content for multipart bodies.
type File struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// FormEntry is one key/value pair of a FormData. Exactly one of Value and
// File is meaningful.
type FormEntry struct {
	Key   string
	Value string
	File  *File
}

// FormData is an ordered multipart form under construction.
type FormData struct {
	entries []FormEntry
}

// NewFormData returns an empty form.
func NewFormData() *FormData {
	return &FormData{}
}

// Append adds a text field. Repeated keys produce repeated entries.
func (f *FormData) Append(key, value string) {
	f.entries = append(f.entries, FormEntry{Key: key, Value: value})
}

// AppendFile adds a file part.
func (f *FormData) AppendFile(key string, file File) {
	f.entries = append(f.entries, FormEntry{Key: key, File: &file})
}

// Entries returns the entries in insertion order.
func (f *FormData) Entries() []FormEntry {
	out := make([]FormEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Values returns the text values stored under key.
func (f *FormData) Values(key string) []string {
	var out []string
	for _, e := range f.entries {
		if e.Key == key && e.File == nil {
			out = append(out, e.Value)
		}
	}
	return out
}

// encode writes the form as multipart/form-data and returns the payload with
// its Content-Type, boundary included.
func (f *FormData) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, e := range f.entries {
		if e.File == nil {
			if err := w.WriteField(e.Key, e.Value); err != nil {
				return nil, "", err
			}
			continue
		}
		part, err := w.CreatePart(filePartHeader(e.Key, e.File))
		if err != nil {
			return nil, "", err
		}
		if e.File.Content != nil {
			if _, err := io.Copy(part, e.File.Content); err != nil {
				return nil, "", fmt.Errorf("write form file %q: %w", e.Key, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func filePartHeader(key string, file *File) textproto.MIMEHeader {
	name := file.Name
	if name == "" {
		name = "blob"
	}
	ct := file.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(key), quoteEscaper.Replace(name)))
	h.Set("Content-Type", ct)
	return h
}

// classifyBody inspects the shape of v.
func classifyBody(v any) BodyKind {
	switch v.(type) {
	case nil:
		return BodyNone
	case *FormData:
		return BodyFormContainer
	case File, *File:
		return BodyFile
	case []byte, json.RawMessage, io.Reader:
		return BodyRaw
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return BodyScalar
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return BodyNone
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array:
		return BodyMapping
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return BodyScalar
	}
	return BodyMapping
}

// wireBody is an encoded payload ready for the transport.
type wireBody struct {
	reader      io.Reader
	contentType string
}

// encodeBody converts body into a payload according to ct. Bodies already in
// the target wire type pass through untouched.
func encodeBody(body any, ct ContentType) (*wireBody, error) {
	kind := classifyBody(body)
	if kind == BodyNone {
		return nil, nil
	}
	if ct == "" {
		ct = ContentTypeJSON
		if kind == BodyFormContainer {
			ct = ContentTypeFormData
		}
	}

	switch ct {
	case ContentTypeJSON, ContentTypeJSONAPI:
		switch kind {
		case BodyRaw:
			return &wireBody{reader: rawReader(body), contentType: string(ct)}, nil
		case BodyFormContainer, BodyFile:
			return nil, fmt.Errorf("%s body cannot be sent as %s", kind, ct)
		}
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		return &wireBody{reader: bytes.NewReader(data), contentType: string(ct)}, nil

	case ContentTypeText:
		if kind == BodyRaw {
			return &wireBody{reader: rawReader(body), contentType: string(ct)}, nil
		}
		text, err := stringifyText(body)
		if err != nil {
			return nil, err
		}
		return &wireBody{reader: strings.NewReader(text), contentType: string(ct)}, nil

	case ContentTypeFormData:
		var form *FormData
		switch kind {
		case BodyFormContainer:
			form = body.(*FormData)
		case BodyMapping:
			var err error
			if form, err = createFormData(body); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%s body cannot be sent as %s", kind, ct)
		}
		r, formType, err := form.encode()
		if err != nil {
			return nil, err
		}
		return &wireBody{reader: r, contentType: formType}, nil

	case ContentTypeURLEncoded:
		switch kind {
		case BodyRaw:
			return &wireBody{reader: rawReader(body), contentType: string(ct)}, nil
		case BodyScalar:
			if s, ok := body.(string); ok {
				return &wireBody{reader: strings.NewReader(s), contentType: string(ct)}, nil
			}
		case BodyMapping:
			values, err := urlValues(body)
			if err != nil {
				return nil, err
			}
			return &wireBody{reader: strings.NewReader(values.Encode()), contentType: string(ct)}, nil
		}
		return nil, fmt.Errorf("%s body cannot be sent as %s", kind, ct)
	}

	if kind == BodyRaw {
		return &wireBody{reader: rawReader(body), contentType: string(ct)}, nil
	}
	if s, ok := body.(string); ok {
		return &wireBody{reader: strings.NewReader(s), contentType: string(ct)}, nil
	}
	return nil, fmt.Errorf("unsupported content type %q for %s body", ct, kind)
}

func rawReader(body any) io.Reader {
	switch b := body.(type) {
	case []byte:
		return bytes.NewReader(b)
	case json.RawMessage:
		return bytes.NewReader(b)
	case io.Reader:
		return b
	}
	return nil
}

// stringifyText forces body into text: strings pass through, anything else
// becomes its JSON text.
func stringifyText(body any) (string, error) {
	if s, ok := body.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// createFormData builds a form from a key/value mapping. A sequence value
// yields one entry per element under the same key; binary elements become
// file parts and everything else is stringified.
func createFormData(input any) (*FormData, error) {
	if form, ok := input.(*FormData); ok {
		return form, nil
	}
	m, err := toMapping(input)
	if err != nil {
		return nil, err
	}
	form := NewFormData()
	for _, key := range sortedKeys(m) {
		for _, item := range expandSequence(m[key]) {
			switch v := item.(type) {
			case File:
				form.AppendFile(key, v)
				continue
			case *File:
				form.AppendFile(key, *v)
				continue
			case json.RawMessage:
				form.Append(key, string(v))
				continue
			case []byte:
				form.AppendFile(key, File{Content: bytes.NewReader(v)})
				continue
			case io.Reader:
				form.AppendFile(key, File{Content: v})
				continue
			}
			form.Append(key, stringifyFormItem(item))
		}
	}
	return form, nil
}

// stringifyFormItem renders one form element: structured values as JSON,
// nil as "null", scalars with their default formatting.
func stringifyFormItem(item any) string {
	switch classifyBody(item) {
	case BodyNone:
		return "null"
	case BodyMapping:
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Sprint(item)
		}
		return string(data)
	}
	rv := reflect.ValueOf(item)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	return fmt.Sprint(rv.Interface())
}

// expandSequence returns the elements of a slice or array value, or v itself.
// Byte slices are binary content, not sequences.
func expandSequence(v any) []any {
	switch v.(type) {
	case nil, []byte, json.RawMessage:
		return []any{v}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// toMapping turns a map with string keys or a struct into map[string]any.
// Structs go through their JSON representation so json tags are honoured.
func toMapping(input any) (map[string]any, error) {
	switch m := input.(type) {
	case map[string]any:
		return m, nil
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	case url.Values:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}

	rv := reflect.ValueOf(input)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return map[string]any{}, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("form body map must have string keys, got %s", rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, nil
	case reflect.Struct:
		data, err := json.Marshal(input)
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var out map[string]any
		if err := dec.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("form body must be a mapping, got %s", rv.Type())
}

func urlValues(body any) (url.Values, error) {
	if v, ok := body.(url.Values); ok {
		return v, nil
	}
	m, err := toMapping(body)
	if err != nil {
		return nil, err
	}
	values := make(url.Values, len(m))
	for _, key := range sortedKeys(m) {
		for _, item := range expandSequence(m[key]) {
			values.Add(key, stringifyFormItem(item))
		}
	}
	return values, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
