package media

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testUploader(baseURL string) *Uploader {
	u := New("demo", "key", "secret", "enrollees")
	u.BaseURL = baseURL
	u.nowFn = func() time.Time { return time.Unix(1717400000, 0) }
	return u
}

func TestUploadBytesSignsRequest(t *testing.T) {
	var gotPath string
	var fields map[string]string
	var fileBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		f, _, err := r.FormFile("file")
		if err == nil {
			b, _ := io.ReadAll(f)
			fileBody = string(b)
		}
		_, _ = w.Write([]byte(`{"public_id":"enrollees/abc","secure_url":"https://res.example/abc.png","format":"png","width":10,"height":12,"bytes":4}`))
	}))
	defer srv.Close()

	res, err := testUploader(srv.URL).UploadBytes(context.Background(), []byte("data"), "abc.png")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if gotPath != "/demo/image/upload" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if res.SecureURL != "https://res.example/abc.png" || res.PublicID != "enrollees/abc" || res.Width != 10 {
		t.Fatalf("unexpected result %+v", res)
	}
	if fileBody != "data" {
		t.Fatalf("unexpected file body %q", fileBody)
	}
	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=enrollees&timestamp=1717400000secret")))
	if fields["signature"] != want || fields["api_key"] != "key" {
		t.Fatalf("unexpected signature fields %+v", fields)
	}
}

func TestUploadErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	ctx := context.Background()

	if _, err := testUploader(srv.URL).UploadDataURL(ctx, "data:image/png;base64,AAAA"); err == nil {
		t.Fatalf("expected upstream error")
	}
	if _, err := testUploader(srv.URL).UploadDataURL(ctx, "hello"); err == nil {
		t.Fatalf("expected rejection of non image data url")
	}
	if _, err := testUploader(srv.URL).UploadBytes(ctx, nil, "x.png"); err == nil {
		t.Fatalf("expected rejection of empty file")
	}
	if _, err := New("", "", "", "").UploadBytes(ctx, []byte("x"), "x.png"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}
