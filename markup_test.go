package secheaders

import (
	"bytes"
	"context"
	"html/template"
	"testing"

	"github.com/saylorsolutions/secheaders/csp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkup_WithoutEmitter(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Nonce(ctx, "main"))
	assert.Empty(t, NonceAttr(ctx, "main"))
	_, err := MintNonce(ctx, "main")
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, ok := FromContext(ctx)
	assert.False(t, ok)
}

func TestMarkup_WithEmitter(t *testing.T) {
	e, err := New(context.Background(), Config{}, nil)
	require.NoError(t, err)
	ctx, err := WithEmitter(context.Background(), e)
	require.NoError(t, err)

	_, err = WithEmitter(ctx, e)
	assert.ErrorIs(t, err, ErrEmitterInContext)

	token, err := MintNonce(ctx, "styles", csp.StyleSrc)
	require.NoError(t, err)
	assert.Equal(t, token, Nonce(ctx, "styles"))
	assert.Equal(t, template.HTMLAttr(`nonce="`+token+`"`), NonceAttr(ctx, "styles"))

	tmpl := template.Must(template.New("page").Funcs(TemplateFuncs(ctx)).Parse(
		`<style {{nonceAttr "styles"}}></style><script nonce="{{nonce "styles"}}"></script><p {{nonceAttr "missing"}}></p>`,
	))
	var buf bytes.Buffer
	require.NoError(t, tmpl.Execute(&buf, nil))
	assert.Equal(t, `<style nonce="`+token+`"></style><script nonce="`+token+`"></script><p ></p>`, buf.String())
}
