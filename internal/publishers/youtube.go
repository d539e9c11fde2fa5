package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"multi-platform-rpa/internal/model"
)

// YouTube uploads through the Data API v3 with a stored OAuth token.
type YouTube struct {
	credentialsPath string
	tokenPath       string
	endpoint        string // API base override, empty for production
}

func NewYouTube(credentialsPath, tokenPath string) *YouTube {
	if credentialsPath == "" {
		credentialsPath = "client_secrets.json"
	}
	if tokenPath == "" {
		tokenPath = "youtube_token.json"
	}
	return &YouTube{credentialsPath: credentialsPath, tokenPath: tokenPath}
}

func (y *YouTube) Platform() model.Platform { return model.PlatformYouTube }

func (y *YouTube) Publish(ctx context.Context, req *Request) (*Result, error) {
	service, err := y.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	videoFile, err := os.Open(req.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer videoFile.Close()

	privacy := req.Privacy
	if privacy == "" {
		privacy = "public"
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
			CategoryId:  "24", // Entertainment
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           privacy,
			SelfDeclaredMadeForKids: false,
		},
	}

	uploaded, err := service.Videos.Insert([]string{"snippet", "status"}, video).
		Media(videoFile).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube upload: %w", err)
	}

	if req.ThumbnailPath != "" {
		if err := y.setThumbnail(ctx, service, uploaded.Id, req.ThumbnailPath); err != nil {
			return nil, err
		}
	}

	return &Result{
		URL:     "https://www.youtube.com/watch?v=" + uploaded.Id,
		Details: map[string]string{"video_id": uploaded.Id, "privacy": privacy},
	}, nil
}

func (y *YouTube) setThumbnail(ctx context.Context, service *youtube.Service, videoID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open thumbnail: %w", err)
	}
	defer f.Close()
	if _, err := service.Thumbnails.Set(videoID).Media(f).Context(ctx).Do(); err != nil {
		return fmt.Errorf("youtube thumbnail: %w", err)
	}
	return nil
}

func (y *YouTube) authenticate(ctx context.Context) (*youtube.Service, error) {
	config, err := YouTubeOAuthConfig(y.credentialsPath)
	if err != nil {
		return nil, err
	}

	token, err := LoadToken(y.tokenPath)
	if err != nil {
		return nil, fmt.Errorf("%w: youtube token: %v", ErrMissingCredentials, err)
	}
	// An expired access token is fine as long as it can be refreshed.
	if !token.Valid() && token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: youtube token expired, run `rpa youtube-token`", ErrMissingCredentials)
	}

	opts := []option.ClientOption{option.WithHTTPClient(config.Client(ctx, token))}
	if y.endpoint != "" {
		opts = append(opts, option.WithEndpoint(y.endpoint))
	}
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return service, nil
}

// YouTubeOAuthConfig reads an OAuth client secrets file.
func YouTubeOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	credBytes, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read client secrets: %v", ErrMissingCredentials, err)
	}
	config, err := google.ConfigFromJSON(credBytes, youtube.YoutubeUploadScope, youtube.YoutubeScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets: %w", err)
	}
	return config, nil
}

func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(token)
	return token, err
}

func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
