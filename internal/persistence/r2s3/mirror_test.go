package r2s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type putRecord struct {
	path string
	body string
	auth string
}

func TestClientPutFile(t *testing.T) {
	got := make(chan putRecord, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- putRecord{path: r.URL.Path, body: string(b), auth: r.Header.Get("Authorization")}
		rw.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := New(ts.URL, "blocklife", "AKID", "SECRET")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	dir := t.TempDir()
	local := filepath.Join(dir, "snap_000000000600.json.zst")
	if err := os.WriteFile(local, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.PutFile(context.Background(), "life_1/snapshots/snap_000000000600.json.zst", local); err != nil {
		t.Fatalf("put: %v", err)
	}

	rec := <-got
	if rec.path != "/blocklife/life_1/snapshots/snap_000000000600.json.zst" {
		t.Fatalf("path = %q", rec.path)
	}
	if rec.body != "payload" {
		t.Fatalf("body = %q", rec.body)
	}
	if !strings.HasPrefix(rec.auth, "AWS4-HMAC-SHA256 Credential=AKID/") {
		t.Fatalf("auth = %q", rec.auth)
	}
}

func TestClientPutFile_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "denied", http.StatusForbidden)
	}))
	defer ts.Close()

	c, err := New(ts.URL, "blocklife", "AKID", "SECRET")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	local := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(local, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.PutFile(context.Background(), "k", local); err == nil {
		t.Fatalf("expected error on 403")
	}
}

func TestNormalizeObjectKey(t *testing.T) {
	cases := map[string]string{
		"a/b/c":      "a/b/c",
		"/a/b":       "a/b",
		"a\\b":       "a/b",
		"a/../../b":  "b",
		"..":         "",
		"":           "",
		"a//b/./c":   "a/b/c",
		" padded/k ": "padded/k",
	}
	for in, want := range cases {
		if got := normalizeObjectKey(in); got != want {
			t.Fatalf("normalizeObjectKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMirror_UploadsRelativeToGameDir(t *testing.T) {
	got := make(chan string, 4)
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		got <- r.URL.Path
		rw.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := New(ts.URL, "blocklife", "AKID", "SECRET")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	gameDir := t.TempDir()
	snapDir := filepath.Join(gameDir, "snapshots")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	local := filepath.Join(snapDir, "snap_000000001200.json.zst")
	if err := os.WriteFile(local, []byte("snap"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewMirror(c, gameDir, "life_1", 1, 8, nil)
	m.Enqueue(local)
	m.Close()

	select {
	case p := <-got:
		if p != "/blocklife/life_1/snapshots/snap_000000001200.json.zst" {
			t.Fatalf("uploaded path = %q", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("upload never arrived")
	}

	st := m.Stats()
	if st.EnqueuedTotal != 1 || st.UploadSuccessTotal != 1 || st.DroppedTotal != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestMirror_SkipsPathsOutsideGameDir(t *testing.T) {
	c, err := New("https://example.invalid", "b", "k", "s")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	m := NewMirror(c, t.TempDir(), "", 1, 8, nil)
	defer m.Close()

	outside := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := m.objectKey(outside); err == nil {
		t.Fatalf("path outside the game dir must be rejected")
	}
}
