package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

type Config struct {
	HTTPAddr      string
	FileServerURL string // base URL the in-page bridge fetches video bytes from

	ScriptsDir     string
	StorageDir     string // allowed root of the file-buffer endpoint
	ScreenshotsDir string // empty disables failure screenshots

	BrowserDriver  string // "chromedp" or "playwright"
	Headless       bool
	ChromePath     string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int

	PollInterval time.Duration
	PollAttempts int

	PlatformsFile string // optional YAML override of the platform table
	ScheduleFile  string // optional YAML list of scheduled publish jobs

	RecordsFile    string // local publish-record index, used when S3 is not configured
	RecordsJSONKey string
	MaxRecords     int

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	YouTubeClientSecrets string
	YouTubeToken         string

	XConsumerKey       string
	XConsumerSecret    string
	XAccessToken       string
	XAccessTokenSecret string

	TelegramToken  string
	TelegramChatID int64

	ErrorsLog string
}

func LoadConfig() (Config, error) {
	cfg := Config{
		HTTPAddr:       firstNonEmpty(os.Getenv("HTTP_ADDR"), ":3409"),
		FileServerURL:  os.Getenv("FILE_SERVER_URL"),
		ScriptsDir:     firstNonEmpty(os.Getenv("RPA_SCRIPTS_DIR"), "rpa-scripts"),
		StorageDir:     firstNonEmpty(os.Getenv("RPA_STORAGE_DIR"), "storage/videos"),
		ScreenshotsDir: os.Getenv("RPA_SCREENSHOTS_DIR"),

		BrowserDriver:  firstNonEmpty(os.Getenv("RPA_BROWSER_DRIVER"), "chromedp"),
		Headless:       false,
		ChromePath:     os.Getenv("RPA_CHROME_PATH"),
		UserAgent:      firstNonEmpty(os.Getenv("RPA_USER_AGENT"), DefaultUserAgent),
		ViewportWidth:  1920,
		ViewportHeight: 1080,

		PollInterval: time.Second,
		PollAttempts: 60,

		PlatformsFile: os.Getenv("PLATFORMS_FILE"),
		ScheduleFile:  os.Getenv("SCHEDULE_FILE"),

		RecordsFile:    firstNonEmpty(os.Getenv("RECORDS_FILE"), "storage/publish_records.json"),
		RecordsJSONKey: "publish_records.json",
		MaxRecords:     500,

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Region:    os.Getenv("S3_REGION"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3AccessKey: firstNonEmpty(os.Getenv("S3_ACCESS_KEY"), os.Getenv("S3_ACCESS_KEY_ID")),
		S3SecretKey: firstNonEmpty(os.Getenv("S3_SECRET_ACCESS_KEY"), os.Getenv("S3_SECRET_ACCESS_KEY_ID")),

		YouTubeClientSecrets: os.Getenv("YOUTUBE_CLIENT_SECRETS"),
		YouTubeToken:         os.Getenv("YOUTUBE_TOKEN"),

		XConsumerKey:       os.Getenv("X_CONSUMER_KEY"),
		XConsumerSecret:    os.Getenv("X_CONSUMER_SECRET"),
		XAccessToken:       os.Getenv("X_ACCESS_TOKEN"),
		XAccessTokenSecret: os.Getenv("X_ACCESS_TOKEN_SECRET"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		ErrorsLog: firstNonEmpty(os.Getenv("ERRORS_LOG"), "errors.log"),
	}

	if v := os.Getenv("RPA_HEADLESS"); v != "" {
		cfg.Headless = v != "false" && v != "0"
	}

	if v := os.Getenv("RPA_VIEWPORT_WIDTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ViewportWidth = n
		}
	}
	if v := os.Getenv("RPA_VIEWPORT_HEIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ViewportHeight = n
		}
	}

	// Poll settings fail loudly; they define the protocol timeout.
	if v := os.Getenv("RPA_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid RPA_POLL_INTERVAL %q", v)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("RPA_POLL_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid RPA_POLL_ATTEMPTS %q", v)
		}
		cfg.PollAttempts = n
	}

	if v := os.Getenv("MAX_RECORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRecords = n
		}
	}

	if v := firstNonEmpty(os.Getenv("TELEGRAM_CHAT_ID"), os.Getenv("POSTS_CHAT_ID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = n
		}
	}

	if cfg.FileServerURL == "" {
		cfg.FileServerURL = "http://127.0.0.1" + portOf(cfg.HTTPAddr)
	}

	switch cfg.BrowserDriver {
	case "chromedp", "playwright":
	default:
		return cfg, fmt.Errorf("unknown RPA_BROWSER_DRIVER %q", cfg.BrowserDriver)
	}
	if cfg.S3Bucket != "" && (cfg.S3Endpoint == "" || cfg.S3Region == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		return cfg, errors.New("S3_BUCKET is set but S3_* credentials are incomplete")
	}
	return cfg, nil
}

// S3Enabled reports whether publish records go to S3 instead of the local file.
func (c Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

func portOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[i:]
		}
	}
	return ":" + addr
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}
