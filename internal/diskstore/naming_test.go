package diskstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/satmihir/photocache/internal/imagecache"
)

func TestNameFor_PlainNameUnchanged(t *testing.T) {
	assert.Equal(t, "01HZX.jpg", NameFor("01HZX.jpg"))
	assert.Equal(t, "01HZX_thumb.jpg", NameFor("01HZX_thumb.jpg"))
}

func TestNameFor_RemotePathIsStable(t *testing.T) {
	a := NameFor("stamps/abc/cover.jpg")
	b := NameFor("/stamps//abc/cover.jpg?token=123")

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, remotePrefix))
	assert.True(t, strings.HasSuffix(a, ".jpg"))
	assert.NoError(t, validateName(a))
}

func TestNameFor_DistinctPathsDiffer(t *testing.T) {
	assert.NotEqual(t, NameFor("stamps/a/cover.jpg"), NameFor("stamps/b/cover.jpg"))
}

func TestNameFor_KeepsThumbnailMarker(t *testing.T) {
	full := NameFor("profiles/u1/avatar.png")
	thumb := NameFor("profiles/u1/avatar_thumb.png")

	assert.False(t, imagecache.IsThumbnailKey(full))
	assert.True(t, imagecache.IsThumbnailKey(thumb))
	assert.Equal(t, imagecache.ThumbnailKey(full), thumb)
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/a/b.jpg":      "a/b.jpg",
		"a//b.jpg":      "a/b.jpg",
		"a/./b.jpg?x=1": "a/b.jpg",
		"a/b.jpg#frag":  "a/b.jpg",
		"../../a/b.jpg": "a/b.jpg",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePath(in), "NormalizePath(%q)", in)
	}
}

func TestNewPhotoName_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		name := NewPhotoName()
		assert.False(t, seen[name], "duplicate name %s", name)
		assert.NoError(t, validateName(name))
		seen[name] = true
	}
}
