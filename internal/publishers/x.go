package publishers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/model"
)

const (
	xAPIBase        = "https://api.x.com/2"
	xChunkSize      = 5 * 1024 * 1024
	xMaxStatusPolls = 60
)

// X posts a video with the v2 chunked media upload.
type X struct {
	consumerKey       string
	consumerSecret    string
	accessToken       string
	accessTokenSecret string
	httpClient        *http.Client
	log               *logging.Logger

	apiBase  string
	pollUnit time.Duration // multiplier for check_after_secs
}

func NewX(consumerKey, consumerSecret, accessToken, accessTokenSecret string, log *logging.Logger) *X {
	config := oauth1.NewConfig(consumerKey, consumerSecret)
	token := oauth1.NewToken(accessToken, accessTokenSecret)

	return &X{
		consumerKey:       consumerKey,
		consumerSecret:    consumerSecret,
		accessToken:       accessToken,
		accessTokenSecret: accessTokenSecret,
		httpClient:        config.Client(context.Background(), token),
		log:               log,
		apiBase:           xAPIBase,
		pollUnit:          time.Second,
	}
}

func (x *X) Platform() model.Platform { return model.PlatformX }

type xProcessingInfo struct {
	State           string `json:"state"`
	CheckAfterSecs  int    `json:"check_after_secs"`
	ProgressPercent int    `json:"progress_percent"`
}

type xMediaResponse struct {
	Data struct {
		ID             string           `json:"id"`
		MediaKey       string           `json:"media_key"`
		ProcessingInfo *xProcessingInfo `json:"processing_info"`
	} `json:"data"`
	Errors []map[string]interface{} `json:"errors"`
}

type xPostResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Errors []map[string]interface{} `json:"errors"`
}

func (x *X) Publish(ctx context.Context, req *Request) (*Result, error) {
	if x.consumerKey == "" || x.consumerSecret == "" || x.accessToken == "" || x.accessTokenSecret == "" {
		return nil, fmt.Errorf("%w: X_* keys not set", ErrMissingCredentials)
	}

	text := RemoveShortsHashtag(req.Description)
	if text == "" {
		text = req.Title
	}

	mediaID, err := x.uploadMedia(ctx, req.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("x media upload: %w", err)
	}
	x.log.Debugf("x: media %s uploaded", mediaID)

	postJSON, _ := json.Marshal(map[string]interface{}{
		"text":  text,
		"media": map[string]interface{}{"media_ids": []string{mediaID}},
	})
	body, status, err := x.do(ctx, http.MethodPost, x.apiBase+"/tweets", "application/json", bytes.NewReader(postJSON))
	if err != nil {
		return nil, fmt.Errorf("x create post: %w", err)
	}

	var postRes xPostResponse
	_ = json.Unmarshal(body, &postRes)
	if status != http.StatusCreated {
		msg := fmt.Sprintf("status=%d", status)
		if len(postRes.Errors) > 0 {
			if detail, ok := postRes.Errors[0]["detail"].(string); ok {
				msg += " | " + detail
			}
		} else if len(body) > 0 {
			msg += " | " + truncate(string(body), 500)
		}
		return nil, fmt.Errorf("x create post: %s", msg)
	}
	if postRes.Data.ID == "" {
		return nil, fmt.Errorf("x create post: no post id in response")
	}

	return &Result{
		URL:     "https://x.com/i/web/status/" + postRes.Data.ID,
		Details: map[string]string{"tweet_id": postRes.Data.ID, "media_id": mediaID},
	}, nil
}

func (x *X) uploadMedia(ctx context.Context, videoPath string) (string, error) {
	fileData, err := os.ReadFile(videoPath)
	if err != nil {
		return "", fmt.Errorf("read video: %w", err)
	}

	initJSON, _ := json.Marshal(map[string]interface{}{
		"media_type":     "video/mp4",
		"total_bytes":    len(fileData),
		"media_category": "tweet_video",
	})
	initRes, err := x.mediaCall(ctx, "INIT", http.MethodPost, x.apiBase+"/media/upload/initialize", "application/json", bytes.NewReader(initJSON))
	if err != nil {
		return "", err
	}
	mediaID := initRes.Data.ID
	if mediaID == "" {
		return "", fmt.Errorf("INIT returned no media id")
	}

	for i := 0; i < len(fileData); i += xChunkSize {
		end := min(i+xChunkSize, len(fileData))

		var appendBody bytes.Buffer
		writer := multipart.NewWriter(&appendBody)
		_ = writer.WriteField("segment_index", strconv.Itoa(i/xChunkSize))
		part, _ := writer.CreateFormFile("media", "video.mp4")
		_, _ = part.Write(fileData[i:end])
		_ = writer.Close()

		body, status, err := x.do(ctx, http.MethodPost, fmt.Sprintf("%s/media/upload/%s/append", x.apiBase, mediaID),
			writer.FormDataContentType(), &appendBody)
		if err != nil {
			return "", fmt.Errorf("APPEND: %w", err)
		}
		if status != http.StatusOK {
			return "", fmt.Errorf("APPEND failed with status %d: %s", status, truncate(string(body), 500))
		}
	}

	fin, err := x.mediaCall(ctx, "FINALIZE", http.MethodPost, fmt.Sprintf("%s/media/upload/%s/finalize", x.apiBase, mediaID), "", nil)
	if err != nil {
		return "", err
	}
	return mediaID, x.awaitProcessing(ctx, mediaID, fin.Data.ProcessingInfo)
}

// awaitProcessing polls the media status until X reports success, for at
// most xMaxStatusPolls checks.
func (x *X) awaitProcessing(ctx context.Context, mediaID string, info *xProcessingInfo) error {
	for attempt := 0; info != nil; attempt++ {
		switch info.State {
		case "succeeded":
			return nil
		case "failed":
			return fmt.Errorf("media processing failed")
		}
		if attempt >= xMaxStatusPolls {
			return fmt.Errorf("media processing still %q after %d checks", info.State, attempt)
		}

		wait := time.Duration(max(info.CheckAfterSecs, 1)) * x.pollUnit
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		statusURL := fmt.Sprintf("%s/media/upload?command=STATUS&media_id=%s", x.apiBase, mediaID)
		res, err := x.mediaCall(ctx, "STATUS", http.MethodGet, statusURL, "", nil)
		if err != nil {
			return err
		}
		info = res.Data.ProcessingInfo
	}
	return nil
}

func (x *X) mediaCall(ctx context.Context, step, method, url, contentType string, body io.Reader) (*xMediaResponse, error) {
	b, status, err := x.do(ctx, method, url, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s failed with status %d: %s", step, status, truncate(string(b), 500))
	}
	var res xMediaResponse
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", step, err)
	}
	return &res, nil
}

func (x *X) do(ctx context.Context, method, url, contentType string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return b, resp.StatusCode, err
}

var (
	shortsTag  = regexp.MustCompile(`(?i)(?:^|\s)#shorts\b`)
	multiSpace = regexp.MustCompile(`\s{2,}`)
)

// RemoveShortsHashtag removes the #shorts hashtag from text.
func RemoveShortsHashtag(s string) string {
	if s == "" {
		return s
	}
	s = shortsTag.ReplaceAllString(s, " ")
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
