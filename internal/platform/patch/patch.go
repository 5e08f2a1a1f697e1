// Package patch applies JSON merge patches (RFC 7386) and JSON patches
// (RFC 6902) to the JSON representation of an entity.
package patch

import (
	"encoding/json"
	"fmt"
	"mime"
	"strconv"
	"strings"

	"github.com/refdata/refdata/internal/platform/apierr"
)

const (
	MergePatchType = "application/merge-patch+json"
	JSONPatchType  = "application/json-patch+json"
)

// Operation is a single JSON Patch operation.
type Operation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Apply patches current according to contentType and decodes the result into
// a new value. Plain application/json bodies are treated as merge patches.
func Apply[E any](current *E, contentType string, body []byte) (*E, error) {
	next := new(E)
	if err := ApplyInto(current, next, contentType, body); err != nil {
		return nil, err
	}
	return next, nil
}

// ApplyInto patches the JSON form of current and decodes the result into
// target, which must be a pointer.
func ApplyInto(current, target any, contentType string, body []byte) error {
	doc, err := toMap(current)
	if err != nil {
		return err
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case JSONPatchType:
		ops, err := ParseJSONPatch(body)
		if err != nil {
			return err
		}
		if doc, err = ApplyJSONPatch(doc, ops); err != nil {
			return err
		}
	case MergePatchType, "application/json", "":
		var p map[string]interface{}
		if err := json.Unmarshal(body, &p); err != nil {
			return apierr.Invalid("invalid merge patch document: %v", err)
		}
		doc = ApplyMergePatch(doc, p)
	default:
		return apierr.Invalid("unsupported patch content type %q", contentType)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode patched document: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return apierr.Invalid("patched document is invalid: %v", err)
	}
	return nil
}

func toMap(v any) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode current document: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode current document: %w", err)
	}
	return doc, nil
}

// ApplyMergePatch merges p into doc in place and returns doc. A null value
// removes the member.
func ApplyMergePatch(doc, p map[string]interface{}) map[string]interface{} {
	for key, val := range p {
		if val == nil {
			delete(doc, key)
			continue
		}
		if pm, ok := val.(map[string]interface{}); ok {
			if dm, ok := doc[key].(map[string]interface{}); ok {
				doc[key] = ApplyMergePatch(dm, pm)
				continue
			}
			doc[key] = ApplyMergePatch(map[string]interface{}{}, pm)
			continue
		}
		doc[key] = val
	}
	return doc
}

// ParseJSONPatch decodes and sanity-checks a JSON Patch document.
func ParseJSONPatch(data []byte) ([]Operation, error) {
	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, apierr.Invalid("invalid JSON patch document: %v", err)
	}
	for i, op := range ops {
		if op.Op == "" {
			return nil, apierr.Invalid("patch operation %d: missing op", i)
		}
		if op.Path == "" {
			return nil, apierr.Invalid("patch operation %d: missing path", i)
		}
	}
	return ops, nil
}

// ApplyJSONPatch applies ops in order. Entities are flat documents, so paths
// address top-level members only ("/name"); nested paths are rejected.
func ApplyJSONPatch(doc map[string]interface{}, ops []Operation) (map[string]interface{}, error) {
	for i, op := range ops {
		if err := applyOp(doc, op); err != nil {
			return nil, apierr.Invalid("patch operation %d (%s %s): %v", i, op.Op, op.Path, err)
		}
	}
	return doc, nil
}

func applyOp(doc map[string]interface{}, op Operation) error {
	key, err := member(op.Path)
	if err != nil {
		return err
	}
	switch op.Op {
	case "add", "replace":
		if _, ok := doc[key]; !ok && op.Op == "replace" {
			return fmt.Errorf("path not found")
		}
		v, err := decodeValue(op.Value)
		if err != nil {
			return err
		}
		doc[key] = v
	case "remove":
		if _, ok := doc[key]; !ok {
			return fmt.Errorf("path not found")
		}
		delete(doc, key)
	case "move", "copy":
		from, err := member(op.From)
		if err != nil {
			return fmt.Errorf("from: %w", err)
		}
		v, ok := doc[from]
		if !ok {
			return fmt.Errorf("from path not found")
		}
		if op.Op == "move" {
			delete(doc, from)
		}
		doc[key] = v
	case "test":
		want, err := decodeValue(op.Value)
		if err != nil {
			return err
		}
		got, _ := json.Marshal(doc[key])
		exp, _ := json.Marshal(want)
		if string(got) != string(exp) {
			return fmt.Errorf("test failed: expected %s, got %s", exp, got)
		}
	default:
		return fmt.Errorf("unknown operation")
	}
	return nil
}

func decodeValue(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing value")
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	return v, nil
}

// member resolves a single-segment JSON pointer, unescaping ~1 and ~0.
func member(path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("path must start with '/'")
	}
	seg := path[1:]
	if seg == "" || strings.Contains(seg, "/") {
		return "", fmt.Errorf("only top-level members can be patched")
	}
	if _, err := strconv.Atoi(seg); err == nil {
		return "", fmt.Errorf("array indices are not supported")
	}
	seg = strings.ReplaceAll(seg, "~1", "/")
	seg = strings.ReplaceAll(seg, "~0", "~")
	return seg, nil
}
