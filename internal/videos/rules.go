package videos

import "fmt"

// MaxDurationSeconds is the longest clip mypov accepts.
const MaxDurationSeconds = 60

// CheckDimensions enforces landscape orientation and the duration cap.
func CheckDimensions(width, height int, duration float64) error {
	if width <= height {
		return fmt.Errorf("%w: only horizontal videos are allowed", ErrInvalidVideo)
	}
	if duration > MaxDurationSeconds {
		return fmt.Errorf("%w: video duration must be 1 minute or less", ErrInvalidVideo)
	}
	return nil
}

// ClipWindow resolves the section of a remote video to import. A zero end
// means "not given": the clip then runs up to a minute from start, bounded by
// the video's duration. Without start or end the whole video must fit the cap.
// The returned end is zero when the full video is used.
func ClipWindow(duration, start, end float64) (float64, float64, error) {
	if start < 0 || end < 0 {
		return 0, 0, fmt.Errorf("%w: start and end must not be negative", ErrInvalidVideo)
	}

	switch {
	case end > 0:
		if end <= start {
			return 0, 0, fmt.Errorf("%w: end must be after start", ErrInvalidVideo)
		}
		if end-start > MaxDurationSeconds {
			return 0, 0, fmt.Errorf("%w: clip must be 1 minute or less", ErrInvalidVideo)
		}
		return start, end, nil
	case start > 0:
		if duration > 0 && start >= duration {
			return 0, 0, fmt.Errorf("%w: start is beyond the end of the video", ErrInvalidVideo)
		}
		end = start + MaxDurationSeconds
		if duration > 0 && duration < end {
			end = duration
		}
		return start, end, nil
	default:
		if duration > MaxDurationSeconds {
			return 0, 0, fmt.Errorf("%w: video is longer than 1 minute, provide start_time and end_time", ErrInvalidVideo)
		}
		return 0, 0, nil
	}
}
