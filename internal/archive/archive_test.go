package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chmdznr/folder-tidy/internal/config"
	"github.com/chmdznr/folder-tidy/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArchiveConfig() config.Archive {
	return config.Archive{
		Endpoint:  "localhost:9000",
		Bucket:    "tidy-logs",
		Folder:    "runs",
		AccessKey: "key",
		SecretKey: "secret",
	}
}

func TestNewUploader_NotConfigured(t *testing.T) {
	_, err := NewUploader(config.Archive{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestObjectKey(t *testing.T) {
	u, err := NewUploader(testArchiveConfig(), logging.Discard())
	require.NoError(t, err)
	u.host = "laptop"

	assert.Equal(t, "runs/laptop/arranger_20251018_101500.txt", u.ObjectKey("/var/log/tidy/arranger_20251018_101500.txt"))

	u.folder = ""
	assert.Equal(t, "laptop/undo_1.txt", u.ObjectKey("undo_1.txt"))
}

func TestPending(t *testing.T) {
	dir := t.TempDir()
	shipped := filepath.Join(dir, "arranger_1.txt")
	fresh := filepath.Join(dir, "arranger_2.txt")
	for _, p := range []string{shipped, fresh} {
		require.NoError(t, os.WriteFile(p, []byte("log"), 0o644))
	}
	require.NoError(t, os.WriteFile(shipped+MarkerSuffix, []byte("etag"), 0o644))

	pending, archived := Pending([]string{shipped, fresh})
	assert.Equal(t, []string{fresh}, pending)
	assert.Equal(t, []string{shipped}, archived)
}
