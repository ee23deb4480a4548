package resilience

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewTransientError(eris.New("503"), 503)))
	assert.True(t, IsTransient(eris.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(eris.New("Too Many Requests")))
	assert.False(t, IsTransient(eris.New("invalid credentials")))
	assert.False(t, IsTransient(nil))
}

func TestIsTransient_WrappedChain(t *testing.T) {
	inner := NewTransientError(eris.New("gateway timeout"), 504)
	wrapped := eris.Wrap(inner, "extract: model call")
	assert.True(t, IsTransient(wrapped))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "code %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "code %d", code)
	}
}

func TestIsSchemaViolation(t *testing.T) {
	sv := &SchemaViolation{Field: "zone", Detail: "unknown zone"}
	assert.True(t, IsSchemaViolation(sv))
	assert.True(t, IsSchemaViolation(eris.Wrap(sv, "extract")))
	assert.False(t, IsSchemaViolation(eris.New("zone problem")))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "schema", ClassifyError(&SchemaViolation{Field: "zone"}))
	assert.Equal(t, "transient", ClassifyError(NewTransientError(eris.New("503"), 503)))
	assert.Equal(t, "permanent", ClassifyError(eris.New("malformed response")))
}
