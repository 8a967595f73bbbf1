package transfer

import (
	"context"
	"errors"
)

// ErrFileNotFound reports that the expected file is not present on the
// remote endpoint. Callers treat this as an operational failure, not a bug.
var ErrFileNotFound = errors.New("remote file not found")

// FileHandler moves partner batch files to and from the transfer endpoint.
// This interface allows us to implement file exchange against multiple
// backends, including local directories and AWS S3.
type FileHandler interface {
	// Upload delivers one complete file to the given remote folder. The
	// upload is all-or-nothing per file.
	Upload(ctx context.Context, folder, name string, data []byte) error

	// Download fetches folder/name into the handler's temp directory and
	// returns the local path. The caller removes the local copy after
	// processing.
	Download(ctx context.Context, folder, name string) (string, error)
}
