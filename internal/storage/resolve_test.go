package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2024"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "2024", "clip.mp4"), []byte("x"), 0o644))
	realRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	outside := t.TempDir()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{"relative file", "2024/clip.mp4", filepath.Join(realRoot, "2024", "clip.mp4"), nil},
		{"missing file stays under root", "nope.mp4", filepath.Join(root, "nope.mp4"), nil},
		{"absolute inside root", filepath.Join(root, "2024", "clip.mp4"), filepath.Join(realRoot, "2024", "clip.mp4"), nil},
		{"dots inside a name are fine", "a..b.mp4", filepath.Join(root, "a..b.mp4"), nil},
		{"empty", "", "", ErrInvalidPath},
		{"parent segment", "../secret", "", ErrInvalidPath},
		{"hidden parent segment", "2024/../../secret", "", ErrInvalidPath},
		{"backslash parent segment", `2024\..\x`, "", ErrInvalidPath},
		{"absolute outside root", filepath.Join(outside, "x.mp4"), "", ErrOutsideRoot},
		{"etc passwd", "/etc/passwd", "", ErrOutsideRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(root, tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRejectsEscapingSymlink(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.mp4"), []byte("s"), 0o644))
	if err := os.Symlink(filepath.Join(outside, "secret.mp4"), filepath.Join(root, "link.mp4")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := Resolve(root, "link.mp4")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}
