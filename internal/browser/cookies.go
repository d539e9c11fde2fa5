package browser

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// Cookie represents a browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	URL      string  `json:"url,omitempty"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"` // unix seconds, -1 for session cookies
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"` // "Strict", "Lax", "None"
}

// LoadCookies reads a cookie bundle. Both a bare JSON array of cookies and
// a storage-state document ({"cookies": [...], "origins": [...]}) are
// accepted.
func LoadCookies(path string) ([]Cookie, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("cookie file %s is not valid JSON", path)
	}

	doc := gjson.ParseBytes(b)
	list := doc
	if !doc.IsArray() {
		list = doc.Get("cookies")
		if !list.IsArray() {
			return nil, fmt.Errorf("cookie file %s has no cookie array", path)
		}
	}

	var cookies []Cookie
	if err := json.Unmarshal([]byte(list.Raw), &cookies); err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}
	out := cookies[:0]
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		if c.URL == "" && c.Domain == "" {
			continue
		}
		if c.Domain != "" && c.Path == "" {
			c.Path = "/"
		}
		out = append(out, c)
	}
	return out, nil
}
