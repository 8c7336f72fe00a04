package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

const wheelName = "arm_none_eabi_gcc_toolchain-14.2.1-py3-none-manylinux_2_28_x86_64.whl"

func TestGenerate(t *testing.T) {
	var srv *httptest.Server
	var requests atomic.Int32
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		switch r.URL.Path {
		case "/repos/owner/repo/releases":
			dl := srv.URL + "/download/v14.2.1/"
			json.NewEncoder(w).Encode([]githubRelease{{
				TagName: "v14.2.1",
				Assets: []githubAsset{
					{Name: wheelName, BrowserDownloadURL: dl + wheelName},
					{Name: wheelName + ".sha256", BrowserDownloadURL: dl + wheelName + ".sha256"},
					{Name: wheelName + ".metadata", BrowserDownloadURL: dl + wheelName + ".metadata"},
					{Name: "notes.txt", BrowserDownloadURL: dl + "notes.txt"},
				},
			}})
		case "/download/v14.2.1/" + wheelName + ".sha256":
			fmt.Fprintf(w, "%s %s\n", sampleHash, wheelName)
		case "/download/v14.2.1/" + wheelName + ".metadata":
			io.WriteString(w, "hello\n")
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewGitHubClient("owner/repo", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "simple")
	opts := Options{ProjectName: "arm-none-eabi-gcc-toolchain", RequiresPython: ">=3.6"}

	wheels, err := Generate(context.Background(), c, out, opts)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(wheels) != 1 {
		t.Fatalf("expected 1 wheel, got %d", len(wheels))
	}
	if wheels[0].SHA256 != sampleHash {
		t.Errorf("expected published checksum, got %s", wheels[0].SHA256)
	}
	// metadata checksum computed from the served "hello\n"
	if wheels[0].MetadataSHA256 != sampleHash {
		t.Errorf("expected computed metadata checksum, got %s", wheels[0].MetadataSHA256)
	}

	page, err := os.ReadFile(filepath.Join(out, "arm-none-eabi-gcc-toolchain", "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(page), wheelName+"#sha256="+sampleHash) {
		t.Errorf("wheel link with checksum missing:\n%s", page)
	}

	// a second run without overwrite must not touch the output or the network
	before := requests.Load()
	if _, err := Generate(context.Background(), c, out, opts); !errors.Is(err, ErrOutputAlreadyExists) {
		t.Errorf("expected ErrOutputAlreadyExists, got %v", err)
	}
	if got := requests.Load() - before; got != 0 {
		t.Errorf("expected no requests before failing, got %d", got)
	}
}

func TestGenerateRefusesUsedOutputBeforeDownloading(t *testing.T) {
	src := &fakeSource{
		releases: []Release{{TagName: "v1", Assets: []Asset{
			{Name: "p.whl", BrowserDownloadURL: "https://h/p.whl"},
		}}},
		files: map[string]string{"https://h/p.whl": "hello\n"},
	}
	out := t.TempDir()
	if err := os.WriteFile(filepath.Join(out, "keep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Generate(context.Background(), src, out, Options{ProjectName: "p"}); !errors.Is(err, ErrOutputAlreadyExists) {
		t.Fatalf("expected ErrOutputAlreadyExists, got %v", err)
	}
	if len(src.calls) != 0 {
		t.Errorf("expected no downloads, got %v", src.calls)
	}

	// with overwrite the stale content is replaced
	if _, err := Generate(context.Background(), src, out, Options{ProjectName: "p", Overwrite: true}); err != nil {
		t.Fatalf("Generate with overwrite failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "keep.txt")); !os.IsNotExist(err) {
		t.Errorf("stale output should be removed, stat err = %v", err)
	}
}

func TestGenerateFallsBackWhenChecksumFileMissing(t *testing.T) {
	src := &fakeSource{
		releases: []Release{{TagName: "v1", Assets: []Asset{
			{Name: "p.whl", BrowserDownloadURL: "https://h/p.whl"},
			{Name: "p.whl.sha256", BrowserDownloadURL: "https://h/p.whl.sha256"},
		}}},
		// the checksum asset answers 404
		files: map[string]string{"https://h/p.whl": "hello\n"},
	}
	wheels, err := Generate(context.Background(), src, t.TempDir(), Options{ProjectName: "p"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if wheels[0].SHA256 != sampleHash {
		t.Errorf("expected computed checksum, got %s", wheels[0].SHA256)
	}
	if src.calls["https://h/p.whl"] != 1 {
		t.Errorf("expected the wheel to be hashed once, got %d downloads", src.calls["https://h/p.whl"])
	}
}

func TestGenerateFallsBackToComputedChecksum(t *testing.T) {
	src := &fakeSource{
		releases: []Release{{TagName: "v1", Assets: []Asset{
			{Name: "p.whl", BrowserDownloadURL: "https://h/p.whl"},
			{Name: "p.whl.sha256", BrowserDownloadURL: "https://h/p.whl.sha256"},
		}}},
		files: map[string]string{
			"https://h/p.whl":        "hello\n",
			"https://h/p.whl.sha256": "deadbeef p.whl\n",
		},
	}
	wheels, err := Generate(context.Background(), src, t.TempDir(), Options{ProjectName: "p"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if wheels[0].SHA256 != sampleHash {
		t.Errorf("expected computed checksum, got %s", wheels[0].SHA256)
	}
	if wheels[0].MetadataSHA256 != "" {
		t.Errorf("expected no metadata checksum, got %s", wheels[0].MetadataSHA256)
	}
}

func TestGenerateConsistencyErrors(t *testing.T) {
	tests := []struct {
		name   string
		assets []Asset
		files  map[string]string
		want   error
	}{
		{
			name: "orphaned metadata checksum",
			assets: []Asset{
				{Name: "p.whl", BrowserDownloadURL: "https://h/p.whl"},
				{Name: "p.whl.metadata.sha256", BrowserDownloadURL: "https://h/p.whl.metadata.sha256"},
			},
			want: ErrOrphanedMetadataChecksum,
		},
		{
			name: "metadata URL mismatch",
			assets: []Asset{
				{Name: "p.whl", BrowserDownloadURL: "https://h/p.whl"},
				{Name: "p.whl.metadata", BrowserDownloadURL: "https://elsewhere/p.whl.metadata"},
			},
			want: ErrMetadataURLMismatch,
		},
		{
			name: "invalid metadata checksum",
			assets: []Asset{
				{Name: "p.whl", BrowserDownloadURL: "https://h/p.whl"},
				{Name: "p.whl.metadata", BrowserDownloadURL: "https://h/p.whl.metadata"},
				{Name: "p.whl.metadata.sha256", BrowserDownloadURL: "https://h/p.whl.metadata.sha256"},
			},
			files: map[string]string{"https://h/p.whl.metadata.sha256": "1234 p.whl.metadata\n"},
			want:  ErrInvalidChecksum,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{releases: []Release{{TagName: "v1", Assets: tt.assets}}, files: tt.files}
			out := filepath.Join(t.TempDir(), "simple")
			_, err := Generate(context.Background(), src, out, Options{ProjectName: "p"})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Errorf("no output should be written on error")
			}
		})
	}
}
