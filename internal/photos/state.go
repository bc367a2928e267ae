// Package photos owns the per-stamp photo sequence and drives each photo
// through its lifecycle: placeholder, local save, upload and commit, or
// deletion at any point along the way.
package photos

import (
	"context"
	"fmt"

	"github.com/satmihir/photocache/internal/gateway"
)

// State is the lifecycle state of one photo slot.
//
//	Placeholder -> Uploading -> Committed
//	Placeholder -> Deleted
//	Uploading   -> Deleted
//	Committed   -> Deleted
type State int

const (
	StatePlaceholder State = iota
	StateUploading
	StateCommitted
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StatePlaceholder:
		return "placeholder"
	case StateUploading:
		return "uploading"
	case StateCommitted:
		return "committed"
	case StateDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Slot is one position in a stamp's photo sequence. ID is the placeholder
// token until the photo is saved locally, then its filename.
type Slot struct {
	ID     string              `json:"id"`
	State  State               `json:"state"`
	Record gateway.PhotoRecord `json:"record"`
}

// Snapshot is the visible photo sequence at one moment. Emptied is set on
// the snapshot published once the last photo's deletion has finished.
type Snapshot struct {
	Slots   []Slot `json:"slots"`
	Emptied bool   `json:"emptied,omitempty"`
}

// Stage names a pipeline event.
type Stage int

const (
	// StageLocalSaved is sent once per batch, after every local save
	// finished, with the filenames that were saved.
	StageLocalSaved Stage = iota
	// StageLocalSaveFailed is sent for each photo that could not be saved.
	StageLocalSaveFailed
	// StageCommitted is sent when a photo's upload and record write succeed.
	StageCommitted
	// StageUploadFailed is sent when a photo stays in the uploading state.
	StageUploadFailed
)

func (s Stage) String() string {
	switch s {
	case StageLocalSaved:
		return "local_saved"
	case StageLocalSaveFailed:
		return "local_save_failed"
	case StageCommitted:
		return "committed"
	case StageUploadFailed:
		return "upload_failed"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Event reports pipeline progress for a batch of photos.
type Event struct {
	Stage Stage
	// Filenames is set on StageLocalSaved.
	Filenames []string
	// Filename is the photo the event concerns. For StageLocalSaveFailed
	// it is empty and ID names the placeholder instead.
	Filename    string
	ID          string
	StoragePath string
	Err         error
}

// ImagePipeline is the image side of the lifecycle. *images.Manager
// implements it.
type ImagePipeline interface {
	SaveLocal(ctx context.Context, raw []byte) (string, error)
	Upload(ctx context.Context, filename, hint string) (string, error)
	Remove(ctx context.Context, filename, storagePath string) error
	DeleteRemote(ctx context.Context, storagePath string)
	Uploading(filename string) bool
}
