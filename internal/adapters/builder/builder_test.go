package builder

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/melih/lighthouse-boot/internal/core/domain"
)

func tarOf(t *testing.T, files map[string]string) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return io.NopCloser(&buf)
}

func readTar(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	out := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(data)
	}
}

func TestWithDockerfile_AddsDockerfile(t *testing.T) {
	rc := WithDockerfile(tarOf(t, map[string]string{"app.py": "print(1)\n"}), []byte("FROM scratch\n"))
	defer rc.Close()

	files := readTar(t, rc)
	assert.Equal(t, "print(1)\n", files["app.py"])
	assert.Equal(t, "FROM scratch\n", files[DockerfileName])
}

func TestWithDockerfile_ReplacesExistingEntry(t *testing.T) {
	rc := WithDockerfile(tarOf(t, map[string]string{
		"app.py":       "print(1)\n",
		DockerfileName: "FROM stale\n",
	}), []byte("FROM fresh\n"))
	defer rc.Close()

	files := readTar(t, rc)
	assert.Len(t, files, 2)
	assert.Equal(t, "FROM fresh\n", files[DockerfileName])
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(8)

	n, err := tb.Write([]byte("step 1/9\n"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	_, _ = tb.Write([]byte("ok"))

	assert.Equal(t, "p 1/9\nok", tb.String())

	small := newTailBuffer(64)
	_, _ = small.Write([]byte("short"))
	assert.Equal(t, "short", small.String())
}

func TestFetchSource_LocalDirectory(t *testing.T) {
	a := &Adapter{logger: zap.NewNop().Sugar()}
	dir := t.TempDir()

	got, cleanup, err := a.FetchSource(context.Background(), domain.Source{Dir: dir})
	require.NoError(t, err)
	cleanup()

	assert.Equal(t, dir, got)
	_, statErr := os.Stat(dir)
	assert.NoError(t, statErr, "cleanup must not remove a caller's directory")
}

func TestFetchSource_RejectsFile(t *testing.T) {
	a := &Adapter{logger: zap.NewNop().Sugar()}
	path := filepath.Join(t.TempDir(), "app.py")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, cleanup, err := a.FetchSource(context.Background(), domain.Source{Dir: path})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not a directory"))
	cleanup()
}

func TestFetchSource_RejectsAmbiguousSource(t *testing.T) {
	a := &Adapter{logger: zap.NewNop().Sugar()}

	_, cleanup, err := a.FetchSource(context.Background(), domain.Source{Dir: ".", RepoURL: "https://example.com/app.git"})
	assert.Error(t, err)
	cleanup()
}
