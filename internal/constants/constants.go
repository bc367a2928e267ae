package constants

const (
	// MaxImageSizeBytes is the hard cap on an uploaded or downloaded image (32 MB)
	MaxImageSizeBytes = 32 * 1024 * 1024

	// MaxDimension bounds the longest side of a locally saved photo.
	MaxDimension = 1600
	// ThumbnailDimension bounds the longest side of a thumbnail.
	ThumbnailDimension = 320

	JPEGQuality      = 80
	ThumbnailQuality = 70
)
