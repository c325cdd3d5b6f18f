package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_Default(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestWith_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	ctx = With(ctx, "entry_id", "abc")

	FromContext(ctx).Info("processing")

	assert.Contains(t, buf.String(), "entry_id=abc")
	assert.Contains(t, buf.String(), "msg=processing")
}
