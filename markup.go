package secheaders

import (
	"context"
	"html/template"

	"github.com/saylorsolutions/secheaders/csp"
)

// Nonce returns the token minted for key by the request's emitter, or an empty string.
func Nonce(ctx context.Context, key string) string {
	e, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	token, _ := e.Nonce(key)
	return token
}

// NonceAttr returns a nonce="..." attribute for key, or an empty attribute if there is no emitter or token.
func NonceAttr(ctx context.Context, key string) template.HTMLAttr {
	e, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return e.NonceAttr(key)
}

// MintNonce mints a token with the request's emitter, see [Emitter.MintNonce].
func MintNonce(ctx context.Context, key string, directives ...csp.Directive) (string, error) {
	e, ok := FromContext(ctx)
	if !ok {
		return "", ErrNotLoaded
	}
	return e.MintNonce(key, directives...)
}

// TemplateFuncs returns "nonce" and "nonceAttr" template functions bound to the request's emitter.
// Nonces should be minted before the template executes, since the first write sends the headers.
func TemplateFuncs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"nonce": func(key string) string {
			return Nonce(ctx, key)
		},
		"nonceAttr": func(key string) template.HTMLAttr {
			return NonceAttr(ctx, key)
		},
	}
}
