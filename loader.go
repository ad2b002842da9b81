package secheaders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/saylorsolutions/secheaders/csp"
)

// Loader provides the policy definition for an [Emitter].
type Loader interface {
	Load(ctx context.Context) (csp.Definition, error)
}

// LoaderFunc adapts a function to [Loader]. Its errors are returned unmodified.
type LoaderFunc func(ctx context.Context) (csp.Definition, error)

func (f LoaderFunc) Load(ctx context.Context) (csp.Definition, error) {
	return f(ctx)
}

// StaticPolicy always returns the same definition.
// The definition is shared and must not be modified after it's handed to the loader.
type StaticPolicy csp.Definition

func (p StaticPolicy) Load(_ context.Context) (csp.Definition, error) {
	return csp.Definition(p), nil
}

// DefaultPolicy loads [csp.DefaultDefinition].
func DefaultPolicy() Loader {
	return StaticPolicy(csp.DefaultDefinition())
}

// InlinePolicy is a policy document given as a map, in the same shape as a JSON or YAML policy file.
type InlinePolicy map[string]any

func (p InlinePolicy) Load(_ context.Context) (csp.Definition, error) {
	def, err := csp.DefinitionFromMap(p)
	if err != nil {
		return csp.Definition{}, fmt.Errorf("%w: inline policy: %w", ErrConfigDecode, err)
	}
	return def, nil
}

// PolicyFile loads a JSON or YAML policy document from a path.
// A file that doesn't exist loads the default policy.
type PolicyFile string

var extensionTypes = map[string]string{
	".json": csp.MediaTypeJSON,
	".yaml": csp.MediaTypeYAML,
	".yml":  csp.MediaTypeYAML,
}

func (p PolicyFile) Load(ctx context.Context) (csp.Definition, error) {
	if err := ctx.Err(); err != nil {
		return csp.Definition{}, err
	}
	path := string(p)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return csp.DefaultDefinition(), nil
		}
		return csp.Definition{}, err
	}
	def, err := csp.Decode(data, mediaType(path, data))
	if err != nil {
		return csp.Definition{}, fmt.Errorf("%w: %s: %w", ErrConfigDecode, path, err)
	}
	return def, nil
}

// mediaType picks a decoder by file extension, falling back to the content.
func mediaType(path string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := extensionTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); csp.SupportsMediaType(mt) {
		return mt
	}
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("{")) || bytes.HasPrefix(trimmed, []byte("[")) {
		return csp.MediaTypeJSON
	}
	return csp.MediaTypeYAML
}

// Preload calls the loader once and returns a [Loader] that serves the result.
// This avoids reading a policy file for every request.
func Preload(ctx context.Context, loader Loader) (Loader, error) {
	if loader == nil {
		return DefaultPolicy(), nil
	}
	if _, ok := loader.(StaticPolicy); ok {
		return loader, nil
	}
	def, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return StaticPolicy(def), nil
}
