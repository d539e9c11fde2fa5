package model

import (
	"path"
	"strings"
	"time"
)

const DefaultVideoMime = "video/mp4"

// Content is the caller's publish payload. Several fields accept two
// names because callers have historically used both.
type Content struct {
	VideoPath       string   `json:"videoPath,omitempty" yaml:"videoPath,omitempty"`
	VideoFile       string   `json:"videoFile,omitempty" yaml:"videoFile,omitempty"`
	VideoFileName   string   `json:"videoFileName,omitempty" yaml:"videoFileName,omitempty"`
	Filename        string   `json:"filename,omitempty" yaml:"filename,omitempty"`
	VideoMime       string   `json:"videoMime,omitempty" yaml:"videoMime,omitempty"`
	MimeType        string   `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
	Title           string   `json:"title,omitempty" yaml:"title,omitempty"`
	Description     string   `json:"description,omitempty" yaml:"description,omitempty"`
	Text            string   `json:"content,omitempty" yaml:"content,omitempty"`
	Location        string   `json:"location,omitempty" yaml:"location,omitempty"`
	LocationKeyword string   `json:"locationKeyword,omitempty" yaml:"locationKeyword,omitempty"`
	Tags            []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	ThumbnailPath   string   `json:"thumbnailPath,omitempty" yaml:"thumbnailPath,omitempty"`
	Privacy         string   `json:"privacy,omitempty" yaml:"privacy,omitempty"`
}

func (c Content) Video() string {
	return firstNonEmpty(c.VideoPath, c.VideoFile)
}

func (c Content) Body() string {
	return firstNonEmpty(c.Description, c.Text)
}

type PublishRequest struct {
	Platform       Platform `json:"platform" yaml:"platform"`
	Content        Content  `json:"content" yaml:"content"`
	CredentialPath string   `json:"credentialPath,omitempty" yaml:"credentialPath,omitempty"`
}

// UploadTask is the normalized instruction handed to the in-page script
// as window.rpConfig. JSON names are part of the page contract.
type UploadTask struct {
	VideoPath       string `json:"videoPath"`
	VideoFileName   string `json:"videoFileName"`
	VideoMime       string `json:"videoMime"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	TabID           string `json:"tabId"`
	LocationKeyword string `json:"locationKeyword,omitempty"`
}

func NewUploadTask(c Content, tabID string) UploadTask {
	video := c.Video()
	name := firstNonEmpty(c.VideoFileName, c.Filename)
	if name == "" && video != "" {
		name = path.Base(strings.ReplaceAll(video, "\\", "/"))
	}
	return UploadTask{
		VideoPath:       video,
		VideoFileName:   name,
		VideoMime:       firstNonEmpty(c.VideoMime, c.MimeType, DefaultVideoMime),
		Title:           c.Title,
		Description:     c.Body(),
		TabID:           tabID,
		LocationKeyword: firstNonEmpty(c.Location, c.LocationKeyword),
	}
}

// ErrorKind classifies a failed execution.
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindConfig     ErrorKind = "config"
	ErrorKindCredential ErrorKind = "credential"
	ErrorKindNavigation ErrorKind = "navigation"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindPage       ErrorKind = "page"
	ErrorKindPublish    ErrorKind = "publish"
	ErrorKindCanceled   ErrorKind = "canceled"
)

// ExecutionResult is returned by value from every publish path.
type ExecutionResult struct {
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	ErrorKind   ErrorKind     `json:"errorKind,omitempty"`
	DurationMs  int64         `json:"durationMs"`
	Screenshots []string      `json:"screenshots,omitempty"`
	Platform    Platform      `json:"platform,omitempty"`
	Method      PublishMethod `json:"method,omitempty"`
	TabID       string        `json:"tabId,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// PublishRecord is one line of the publish history.
type PublishRecord struct {
	ID         string        `json:"id"`
	Platform   Platform      `json:"platform"`
	Method     PublishMethod `json:"method"`
	Title      string        `json:"title"`
	VideoPath  string        `json:"video_path"`
	TabID      string        `json:"tab_id,omitempty"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	ErrorKind  ErrorKind     `json:"error_kind,omitempty"`
	DurationMs int64         `json:"duration_ms"`
	URL        string        `json:"url,omitempty"`
	Source     string        `json:"source"` // api, batch, cron, cli
	CreatedAt  time.Time     `json:"created_at"`
}

type PublishRecordsIndex struct {
	UpdatedAt time.Time       `json:"updated_at"`
	Items     []PublishRecord `json:"items"`
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}
