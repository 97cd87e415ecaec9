package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mypov/backend/internal/config"
	"github.com/mypov/backend/internal/models"
)

// ErrDisabled is returned when no Elasticsearch URL has been configured.
var ErrDisabled = errors.New("search: elasticsearch is not configured")

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

// Index maintains the videos index in Elasticsearch over its REST API.
type Index struct {
	client  *http.Client
	baseURL string
	index   string
}

// NewIndex returns an Index for cfg, or ErrDisabled when search is not configured.
func NewIndex(cfg config.SearchConfig) (*Index, error) {
	if strings.TrimSpace(cfg.ElasticsearchURL) == "" {
		return nil, ErrDisabled
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	index := cfg.VideosIndex
	if index == "" {
		index = "videos"
	}
	return &Index{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(cfg.ElasticsearchURL, "/"),
		index:   index,
	}, nil
}

type videoDocument struct {
	VideoID     string    `json:"video_id"`
	OwnerID     string    `json:"owner_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Hashtags    []string  `json:"hashtags"`
	CreatedAt   time.Time `json:"created_at"`
}

var videosMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"video_id":    map[string]any{"type": "keyword"},
			"owner_id":    map[string]any{"type": "keyword"},
			"title":       map[string]any{"type": "text", "analyzer": "standard"},
			"description": map[string]any{"type": "text", "analyzer": "standard"},
			"hashtags":    map[string]any{"type": "keyword"},
			"created_at":  map[string]any{"type": "date"},
		},
	},
}

// Ping checks that the cluster is reachable.
func (i *Index) Ping(ctx context.Context) error {
	resp, err := i.do(ctx, http.MethodGet, i.baseURL, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, "ping", http.StatusOK)
}

// EnsureIndex creates the videos index with its mapping unless it already exists.
func (i *Index) EnsureIndex(ctx context.Context) error {
	resp, err := i.do(ctx, http.MethodHead, i.indexURL(), nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	resp, err = i.do(ctx, http.MethodPut, i.indexURL(), videosMapping)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, "create index "+i.index, http.StatusOK, http.StatusCreated)
}

// IndexVideo creates or replaces the document for video.
func (i *Index) IndexVideo(ctx context.Context, video models.Video) error {
	doc := videoDocument{
		VideoID:     video.ID,
		OwnerID:     video.OwnerID,
		Title:       video.Title,
		Description: video.Description,
		Hashtags:    Hashtags(video.Description),
		CreatedAt:   video.CreatedAt,
	}

	resp, err := i.do(ctx, http.MethodPut, i.indexURL()+"/_doc/"+video.ID, doc)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, "index video "+video.ID, http.StatusOK, http.StatusCreated)
}

// DeleteVideo removes the document for id. A missing document is not an error.
func (i *Index) DeleteVideo(ctx context.Context, id string) error {
	resp, err := i.do(ctx, http.MethodDelete, i.indexURL()+"/_doc/"+id, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, "delete video "+id, http.StatusOK, http.StatusNotFound)
}

// SearchVideoIDs returns the ids of the best matching videos, most relevant first.
// A query starting with '#' matches the hashtag exactly; anything else is a
// full-text match over title and description.
func (i *Index) SearchVideoIDs(ctx context.Context, query string, limit int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}, nil
	}

	var match map[string]any
	if tag, ok := strings.CutPrefix(query, "#"); ok {
		match = map[string]any{"term": map[string]any{"hashtags": strings.ToLower(tag)}}
	} else {
		match = map[string]any{"multi_match": map[string]any{
			"query":  query,
			"fields": []string{"title^3", "description^2"},
		}}
	}

	body := map[string]any{
		"query":   match,
		"size":    limit,
		"_source": []string{"video_id"},
	}

	resp, err := i.do(ctx, http.MethodPost, i.indexURL()+"/_search", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, "search videos", http.StatusOK); err != nil {
		return nil, err
	}

	var payload struct {
		Hits struct {
			Hits []struct {
				ID     string `json:"_id"`
				Source struct {
					VideoID string `json:"video_id"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]string, 0, len(payload.Hits.Hits))
	for _, hit := range payload.Hits.Hits {
		id := hit.Source.VideoID
		if id == "" {
			id = hit.ID
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Hashtags extracts the distinct lowercase hashtags in text, in order of appearance.
func Hashtags(text string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(text, -1)
	tags := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

func (i *Index) indexURL() string {
	return i.baseURL + "/" + i.index
}

func (i *Index) do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch %s %s: %w", method, url, err)
	}
	return resp, nil
}

func expectStatus(resp *http.Response, op string, accepted ...int) error {
	for _, code := range accepted {
		if resp.StatusCode == code {
			return nil
		}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s: status %d, body: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
