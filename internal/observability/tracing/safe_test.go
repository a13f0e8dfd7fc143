package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/invoices/:id"),
		attribute.String("authorization", "Bearer secret"),
		attribute.String("notes", "internal"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeAttributesTruncatesLongValues(t *testing.T) {
	attrs := SafeAttributes(attribute.String("http.route", strings.Repeat("a", 1000)))
	require.Len(t, attrs, 1)
	assert.Len(t, attrs[0].Value.AsString(), maxAttributeLength)
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(errors.New("db down\nstack trace here")), "db down")
	assert.EqualError(t, SafeError(errors.New("  ")), "error")
}
