package csp

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	MediaTypeJSON = "application/json"
	MediaTypeYAML = "application/yaml"
)

// Decode decodes a policy document according to its media type.
// JSON and YAML media types are supported, including the text/ and x- variants, and any +json or +yaml suffix.
func Decode(data []byte, mediaType string) (Definition, error) {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return Definition{}, fmt.Errorf("%w: media type '%s': %w", ErrDecode, mediaType, err)
	}
	switch {
	case isJSON(mt):
		return DecodeJSON(data)
	case isYAML(mt):
		return DecodeYAML(data)
	default:
		return Definition{}, fmt.Errorf("%w: unsupported media type '%s'", ErrDecode, mt)
	}
}

// SupportsMediaType reports whether [Decode] can decode documents of the given media type.
func SupportsMediaType(mediaType string) bool {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return false
	}
	return isJSON(mt) || isYAML(mt)
}

func isJSON(mt string) bool {
	return mt == MediaTypeJSON || mt == "text/json" || strings.HasSuffix(mt, "+json")
}

func isYAML(mt string) bool {
	switch mt {
	case MediaTypeYAML, "application/x-yaml", "text/yaml", "text/x-yaml":
		return true
	}
	return strings.HasSuffix(mt, "+yaml")
}

// DecodeJSON decodes a JSON policy document.
func DecodeJSON(data []byte) (Definition, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Definition{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return DefinitionFromMap(doc)
}

// DecodeYAML decodes a YAML policy document.
func DecodeYAML(data []byte) (Definition, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Definition{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return DefinitionFromMap(doc)
}

// DefinitionFromMap converts a generic policy map into a [Definition].
//
// Recognized top-level keys are report-only, report-uri, upgrade-insecure-requests, reflected-xss, referrer, frame-options, source-sets, and any directive name.
// Frame options may be a header value like "DENY" or "ALLOW-FROM https://example.com", or an object with the keys value and origin.
// A directive may be a list of allowed sources, a single source string, or an object with the keys
// allow, self, data, blob, mediastream, filesystem, unsafe-inline, unsafe-eval, hashes, nonces, and sets.
// Unknown keys are rejected.
func DefinitionFromMap(doc map[string]any) (Definition, error) {
	def := Definition{
		Directives: map[Directive]Sources{},
	}
	var errs []error
	for _, key := range sortedKeys(doc) {
		val := doc[key]
		var err error
		switch key {
		case "report-only":
			def.ReportOnly, err = asBool(val)
		case "report-uri":
			def.ReportURI, err = asString(val)
		case "upgrade-insecure-requests":
			def.UpgradeInsecureRequests, err = asBool(val)
		case "reflected-xss":
			var s string
			s, err = asString(val)
			def.ReflectedXSS = ReflectedXSS(s)
		case "referrer":
			var s string
			s, err = asString(val)
			def.Referrer = Referrer(s)
		case "frame-options":
			def.FrameOptions, def.FrameOrigin, err = asFrameOptions(val)
		case "source-sets":
			def.SourceSets, err = asSourceSets(val)
		default:
			var d Directive
			if d, err = ParseDirective(key); err == nil {
				def.Directives[d], err = asSources(val)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: '%s': %w", ErrDecode, key, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Definition{}, err
	}
	return def, nil
}

func asFrameOptions(val any) (FrameOption, string, error) {
	switch v := val.(type) {
	case nil:
		return "", "", nil
	case string:
		value, origin, _ := strings.Cut(strings.TrimSpace(v), " ")
		return FrameOption(strings.ToUpper(value)), strings.TrimSpace(origin), nil
	case map[string]any:
		var (
			value, origin string
			errs          []error
		)
		for _, key := range sortedKeys(v) {
			var err error
			switch key {
			case "value":
				value, err = asString(v[key])
			case "origin":
				origin, err = asString(v[key])
			default:
				err = errors.New("unknown key")
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("'%s': %w", key, err))
			}
		}
		return FrameOption(strings.ToUpper(strings.TrimSpace(value))), origin, errors.Join(errs...)
	default:
		return "", "", fmt.Errorf("unexpected type %T", val)
	}
}

func asSources(val any) (Sources, error) {
	var src Sources
	switch v := val.(type) {
	case nil:
		return src, nil
	case string:
		src.Allow = []string{v}
		return src, nil
	case []any, []string:
		allow, err := asStrings(v)
		src.Allow = allow
		return src, err
	case map[string]any:
		var errs []error
		for _, key := range sortedKeys(v) {
			var err error
			switch key {
			case "allow":
				src.Allow, err = asStrings(v[key])
			case "self":
				src.Self, err = asBool(v[key])
			case "data":
				src.Data, err = asBool(v[key])
			case "blob":
				src.Blob, err = asBool(v[key])
			case "mediastream":
				src.MediaStream, err = asBool(v[key])
			case "filesystem":
				src.Filesystem, err = asBool(v[key])
			case "unsafe-inline":
				src.UnsafeInline, err = asBool(v[key])
			case "unsafe-eval":
				src.UnsafeEval, err = asBool(v[key])
			case "hashes":
				src.Hashes, err = asHashes(v[key])
			case "nonces":
				src.Nonces, err = asStrings(v[key])
			case "sets":
				src.Sets, err = asStrings(v[key])
			default:
				err = errors.New("unknown key")
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("'%s': %w", key, err))
			}
		}
		return src, errors.Join(errs...)
	default:
		return src, fmt.Errorf("unexpected type %T", val)
	}
}

// asHashes accepts either a list of single-entry {algo: digest} objects, or one object mapping algorithms to digests.
func asHashes(val any) ([]Hash, error) {
	var hashes []Hash
	add := func(entry map[string]any) error {
		for _, algo := range sortedKeys(entry) {
			digests, err := asStrings(entry[algo])
			if err != nil {
				return fmt.Errorf("'%s': %w", algo, err)
			}
			if err := HashAlgorithm(algo).validate(); err != nil {
				return err
			}
			for _, digest := range digests {
				hashes = append(hashes, Hash{Algorithm: HashAlgorithm(algo), Digest: digest})
			}
		}
		return nil
	}
	switch v := val.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return hashes, add(v)
	case []any:
		for i, elem := range v {
			entry, ok := elem.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d: unexpected type %T", i, elem)
			}
			if err := add(entry); err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
		}
		return hashes, nil
	default:
		return nil, fmt.Errorf("unexpected type %T", val)
	}
}

func asSourceSets(val any) (map[string][]string, error) {
	m, ok := val.(map[string]any)
	if !ok {
		if val == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected type %T", val)
	}
	sets := make(map[string][]string, len(m))
	for _, name := range sortedKeys(m) {
		exprs, err := asStrings(m[name])
		if err != nil {
			return nil, fmt.Errorf("'%s': %w", name, err)
		}
		sets[name] = exprs
	}
	return sets, nil
}

// asStrings accepts a list of strings or a single string.
func asStrings(val any) ([]string, error) {
	switch v := val.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return append([]string{}, v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, elem := range v {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: expected a string, got %T", i, elem)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", val)
	}
}

func asString(val any) (string, error) {
	switch v := val.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("expected a string, got %T", val)
	}
}

func asBool(val any) (bool, error) {
	switch v := val.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, fmt.Errorf("expected a boolean, got %T", val)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
