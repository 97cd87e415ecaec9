package feed

import "github.com/mypov/backend/internal/models"

// MergeUnique concatenates pools in order, keeping the first occurrence of each
// video id. A video present in an earlier pool shadows later copies.
func MergeUnique(pools ...[]models.Video) []models.Video {
	size := 0
	for _, pool := range pools {
		size += len(pool)
	}

	seen := make(map[string]struct{}, size)
	merged := make([]models.Video, 0, size)
	for _, pool := range pools {
		for _, video := range pool {
			if _, ok := seen[video.ID]; ok {
				continue
			}
			seen[video.ID] = struct{}{}
			merged = append(merged, video)
		}
	}
	return merged
}

// Page returns list[skip : skip+limit], clamped to the bounds of list.
func Page(list []models.Video, skip, limit int) []models.Video {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || skip >= len(list) {
		return []models.Video{}
	}
	end := skip + limit
	if end > len(list) || end < skip {
		end = len(list)
	}
	return list[skip:end]
}
