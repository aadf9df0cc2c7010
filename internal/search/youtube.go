package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/npezzotti/go-reveal/internal/types"
)

const (
	DefaultYouTubeURL = "https://www.googleapis.com/youtube/v3/search"

	maxResultsLimit = 50
	requestTimeout  = 10 * time.Second
)

// YouTubeClient queries the YouTube Data API v3 search endpoint.
type YouTubeClient struct {
	apiKey  string
	baseURL string
	filter  Filter
	http    *http.Client
}

type YouTubeOption func(*YouTubeClient)

func WithBaseURL(u string) YouTubeOption {
	return func(c *YouTubeClient) { c.baseURL = u }
}

func WithHTTPClient(h *http.Client) YouTubeOption {
	return func(c *YouTubeClient) { c.http = h }
}

func WithFilter(f Filter) YouTubeOption {
	return func(c *YouTubeClient) { c.filter = f }
}

func NewYouTubeClient(apiKey string, opts ...YouTubeOption) *YouTubeClient {
	c := &YouTubeClient{
		apiKey:  apiKey,
		baseURL: DefaultYouTubeURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Filter reports the filter this client applies, so caches can key on it.
func (c *YouTubeClient) Filter() Filter {
	return c.filter
}

type youtubeResponse struct {
	Items []struct {
		Id struct {
			VideoId string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title      string `json:"title"`
			Thumbnails map[string]struct {
				URL string `json:"url"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

type youtubeError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *YouTubeClient) Search(ctx context.Context, query string, max int) ([]types.Video, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if max <= 0 {
		max = 1
	}
	if max > maxResultsLimit {
		max = maxResultsLimit
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", query)
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(max))
	params.Set("key", c.apiKey)
	if c.filter.Embeddable {
		params.Set("videoEmbeddable", "true")
	}
	if c.filter.Duration != "" {
		params.Set("videoDuration", c.filter.Duration)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr youtubeError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("search failed with status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("search failed with status %d", resp.StatusCode)
	}

	var body youtubeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	videos := make([]types.Video, 0, len(body.Items))
	for _, item := range body.Items {
		if item.Id.VideoId == "" {
			continue
		}
		videos = append(videos, types.Video{
			VideoId:   item.Id.VideoId,
			Title:     item.Snippet.Title,
			Thumbnail: pickThumbnail(item.Snippet.Thumbnails),
		})
		if len(videos) == max {
			break
		}
	}

	return videos, nil
}

func pickThumbnail(thumbs map[string]struct {
	URL string `json:"url"`
}) string {
	for _, size := range []string{"default", "medium", "high"} {
		if t, ok := thumbs[size]; ok && t.URL != "" {
			return t.URL
		}
	}
	return ""
}
