package diskstore

import (
	"fmt"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/xxh3"

	"github.com/satmihir/photocache/internal/imagecache"
)

// remotePrefix marks files whose name was derived from a remote storage path.
const remotePrefix = "r_"

// PhotoExt is the extension of every locally saved user photo.
const PhotoExt = ".jpg"

// NewPhotoName returns a fresh, stable filename for a user photo.
func NewPhotoName() string {
	return ulid.Make().String() + PhotoExt
}

// NameFor maps an image identity to the file it is stored under.
//
// Plain filenames (user photos) are used unchanged. Remote storage paths are
// normalised and hashed so the same asset always lands in the same file. The
// thumbnail marker survives the mapping so the name still selects its tier.
func NameFor(identity string) string {
	if isPlainName(identity) {
		return identity
	}

	normalized := NormalizePath(identity)
	thumb := imagecache.IsThumbnailKey(normalized)
	ext := path.Ext(normalized)
	base := strings.TrimSuffix(normalized, ext)
	if thumb {
		base = strings.TrimSuffix(base, imagecache.ThumbnailMarker)
	}

	name := fmt.Sprintf("%s%016x%s", remotePrefix, xxh3.HashString(base+ext), ext)
	if thumb {
		return imagecache.ThumbnailKey(name)
	}
	return name
}

// NormalizePath canonicalises a remote storage path: query strings and
// fragments are dropped, duplicate separators collapsed and the leading slash
// removed.
func NormalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

func isPlainName(identity string) bool {
	if identity == "" || identity == "." || identity == ".." {
		return false
	}
	return !strings.ContainsAny(identity, `/\?#`)
}
