package videos

import "errors"

var (
	// ErrProviderUnavailable indicates the metadata provider is not configured.
	ErrProviderUnavailable = errors.New("video metadata provider unavailable")
	// ErrAssetStorageUnavailable indicates no object storage has been configured.
	ErrAssetStorageUnavailable = errors.New("video asset storage unavailable")
	// ErrInvalidVideo is returned when a file or clip violates the upload rules.
	ErrInvalidVideo = errors.New("invalid video")
	// ErrProcessorClosed is returned by Enqueue after Shutdown has been called.
	ErrProcessorClosed = errors.New("video processor closed")
)
