// Package media uploads enrollee photos to Cloudinary.
package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no Cloudinary credentials are set.
var ErrNotConfigured = errors.New("media uploads are not configured")

const defaultBaseURL = "https://api.cloudinary.com/v1_1"

// Uploader signs and posts images to the Cloudinary upload API.
type Uploader struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client
	nowFn     func() time.Time
}

// New creates an uploader.
func New(cloudName, apiKey, apiSecret, folder string) *Uploader {
	return &Uploader{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   defaultBaseURL,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		nowFn:     time.Now,
	}
}

// Enabled reports whether credentials are present.
func (u *Uploader) Enabled() bool {
	return u != nil && u.CloudName != "" && u.APIKey != "" && u.APISecret != ""
}

// Result holds the fields of the upload response the API hands back.
type Result struct {
	PublicID  string `json:"publicId"`
	SecureURL string `json:"secureUrl"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
}

type cloudinaryResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
}

// UploadDataURL uploads a "data:image/...;base64," URL.
func (u *Uploader) UploadDataURL(ctx context.Context, dataURL string) (Result, error) {
	if !strings.HasPrefix(dataURL, "data:image/") {
		return Result{}, fmt.Errorf("media: expected an image data URL")
	}
	return u.upload(ctx, func(w *multipart.Writer) error {
		return w.WriteField("file", dataURL)
	})
}

// UploadBytes uploads raw image bytes.
func (u *Uploader) UploadBytes(ctx context.Context, data []byte, filename string) (Result, error) {
	if len(data) == 0 {
		return Result{}, fmt.Errorf("media: empty file")
	}
	return u.upload(ctx, func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return err
		}
		_, err = io.Copy(part, bytes.NewReader(data))
		return err
	})
}

func (u *Uploader) upload(ctx context.Context, writeFile func(*multipart.Writer) error) (Result, error) {
	if !u.Enabled() {
		return Result{}, ErrNotConfigured
	}
	params := map[string]string{
		"timestamp": strconv.FormatInt(u.nowFn().Unix(), 10),
		"api_key":   u.APIKey,
	}
	if u.Folder != "" {
		params["folder"] = u.Folder
	}
	params["signature"] = u.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	if err := writeFile(w); err != nil {
		return Result{}, fmt.Errorf("media: write file failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("media: close form failed: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/image/upload", strings.TrimRight(u.BaseURL, "/"), u.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return Result{}, fmt.Errorf("media: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := u.HTTP.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("media: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("media: upload failed (%d): %s", resp.StatusCode, string(body))
	}
	var out cloudinaryResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{}, fmt.Errorf("media: decode response failed: %w", err)
	}
	return Result(out), nil
}

// sign computes the API signature; api_key and file are not signed.
func (u *Uploader) sign(params map[string]string) string {
	exclude := map[string]bool{"api_key": true, "file": true, "resource_type": true}
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !exclude[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + u.APISecret))
	return fmt.Sprintf("%x", sum)
}
