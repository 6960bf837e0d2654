// Package icon decodes the self-describing icon values search backends
// attach to their results.
//
// Two shapes exist on the wire: a reference into the user's icon theme, and
// an absolute path to an image file. Backends serialize these as a tagged
// pair, for example:
//
//	["themed-icon", {"names": ["folder", "folder-generic"]}]
//	["file-icon", {"file": "file:///tmp/shot.png"}]
//
// Backends that bridge a variant type system additionally box values at any
// level as {"v": ...}. Decoding is best effort: third-party backends are
// loose with the format, so an unrecognized shape yields no icon rather
// than an error.
package icon

import (
	"sort"
	"strings"
)

// Icon is a decoded icon reference. The two implementations are Themed and
// FilePath; a nil Icon means the result carries no usable icon.
type Icon interface {
	isIcon()
}

// Themed names an icon in the current icon theme.
type Themed struct {
	Name string
}

// FilePath is an absolute path to an image file.
type FilePath struct {
	Path string
}

func (Themed) isIcon()   {}
func (FilePath) isIcon() {}

const (
	tagThemed = "themed-icon"
	tagFile   = "file-icon"
)

// Decode turns a backend-supplied icon value into an Icon. The input is
// whatever encoding/json produced for the field: strings, []any and
// map[string]any, possibly boxed. Decode never fails; values without a
// recognizable icon shape yield nil.
func Decode(v any) Icon {
	switch val := unbox(v).(type) {
	case string:
		// A bare themed name. Paths with spaces and prose don't qualify.
		if val != "" && !strings.ContainsRune(val, ' ') {
			return Themed{Name: val}
		}
		return nil
	case []any:
		return decodeTagged(val)
	default:
		return nil
	}
}

// decodeTagged handles the ["themed-icon", {...}] / ["file-icon", {...}] pair.
func decodeTagged(pair []any) Icon {
	if len(pair) != 2 {
		return nil
	}
	tag, ok := unbox(pair[0]).(string)
	if !ok {
		return nil
	}
	fields, ok := unbox(pair[1]).(map[string]any)
	if !ok {
		return nil
	}

	switch tag {
	case tagThemed:
		return decodeThemed(fields)
	case tagFile:
		return decodeFile(fields)
	default:
		return nil
	}
}

// decodeThemed picks the first usable name out of a themed-icon field map.
// The well-known key is "names"; some backends use other keys, so the
// remaining values are scanned for any string array as a fallback.
func decodeThemed(fields map[string]any) Icon {
	if names, ok := stringSlice(fields["names"]); ok {
		if name := firstNonEmpty(names); name != "" {
			return Themed{Name: name}
		}
	}
	for _, key := range sortedKeys(fields) {
		if key == "names" {
			continue
		}
		names, ok := stringSlice(fields[key])
		if !ok {
			continue
		}
		if name := firstNonEmpty(names); name != "" {
			return Themed{Name: name}
		}
	}
	return nil
}

// decodeFile picks the image path out of a file-icon field map, preferring
// the "file" key and falling back to the first string value found.
func decodeFile(fields map[string]any) Icon {
	if path, ok := unbox(fields["file"]).(string); ok && path != "" {
		return FilePath{Path: stripFileURI(path)}
	}
	for _, key := range sortedKeys(fields) {
		if key == "file" {
			continue
		}
		if path, ok := unbox(fields[key]).(string); ok && path != "" {
			return FilePath{Path: stripFileURI(path)}
		}
	}
	return nil
}

// unbox removes {"v": ...} wrapper layers until a concrete value remains.
func unbox(v any) any {
	for {
		m, ok := v.(map[string]any)
		if !ok || len(m) != 1 {
			return v
		}
		inner, ok := m["v"]
		if !ok {
			return v
		}
		v = inner
	}
}

// stringSlice converts v to a slice of strings, or reports that v is not a
// string array. Elements may themselves be boxed.
func stringSlice(v any) ([]string, bool) {
	arr, ok := unbox(v).([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		s, ok := unbox(el).(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func firstNonEmpty(ss []string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

// stripFileURI turns file:// URIs into plain paths.
func stripFileURI(path string) string {
	return strings.TrimPrefix(path, "file://")
}

// sortedKeys returns the map's keys in a stable order so fallback scans are
// deterministic.
func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
