package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCookies(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []Cookie
	}{
		{
			name: "bare array",
			body: `[{"name":"SESSDATA","value":"abc","domain":".bilibili.com","path":"/","httpOnly":true,"secure":true,"sameSite":"Lax","expires":1893456000}]`,
			want: []Cookie{{Name: "SESSDATA", Value: "abc", Domain: ".bilibili.com", Path: "/", HTTPOnly: true, Secure: true, SameSite: "Lax", Expires: 1893456000}},
		},
		{
			name: "storage state",
			body: `{"cookies":[{"name":"SUB","value":"x","domain":".weibo.com"}],"origins":[]}`,
			want: []Cookie{{Name: "SUB", Value: "x", Domain: ".weibo.com", Path: "/"}},
		},
		{
			name: "nameless and unscoped cookies dropped",
			body: `[{"name":"","value":"x","domain":"a.com"},{"name":"z","value":"1"},{"name":"u","value":"2","url":"https://zhihu.com"}]`,
			want: []Cookie{{Name: "u", Value: "2", URL: "https://zhihu.com"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadCookies(writeFile(t, tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadCookiesErrors(t *testing.T) {
	_, err := LoadCookies(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadCookies(writeFile(t, `not json`))
	assert.Error(t, err)

	_, err = LoadCookies(writeFile(t, `{"origins":[]}`))
	assert.Error(t, err)
}
