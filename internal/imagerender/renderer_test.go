package imagerender

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderPagesRejectsBadRange(t *testing.T) {
	_, err := New().RenderPages(context.Background(), "unused.pdf", 300, 3, 2)
	assert.Error(t, err)
	_, err = New().RenderPages(context.Background(), "unused.pdf", 300, 0, 2)
	assert.Error(t, err)
}

func TestRenderPagesMissingFile(t *testing.T) {
	_, err := New().RenderPages(context.Background(), "does-not-exist.pdf", 300, 1, 1)
	assert.Error(t, err)
}
