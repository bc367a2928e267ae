package gateway

import "fmt"

// UploadState is the remote state of a photo record.
type UploadState int

const (
	// Uploading means the photo is saved locally and its upload has not
	// (yet) succeeded.
	Uploading UploadState = iota
	// Committed means the photo has a remote storage path.
	Committed
)

func (s UploadState) String() string {
	switch s {
	case Uploading:
		return "uploading"
	case Committed:
		return "committed"
	default:
		return fmt.Sprintf("UploadState(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s UploadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *UploadState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "uploading":
		*s = Uploading
	case "committed":
		*s = Committed
	default:
		return fmt.Errorf("unknown upload state %q", text)
	}
	return nil
}

// PhotoRecord is one photo attached to a collected-stamp entry.
type PhotoRecord struct {
	LocalFilename     string      `json:"local_filename"`
	RemoteStoragePath string      `json:"remote_storage_path,omitempty"`
	UploadState       UploadState `json:"upload_state"`
	// Position orders a stamp's photos by capture; it never changes once
	// assigned.
	Position int `json:"position"`
}

// Committed returns a copy of r moved to the committed state with path set.
func (r PhotoRecord) Committed(storagePath string) PhotoRecord {
	r.RemoteStoragePath = storagePath
	r.UploadState = Committed
	return r
}
