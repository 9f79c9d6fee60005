package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MediaService uploads files straight to a hosted media provider
// (Cloudinary-style unsigned upload API) instead of routing them through the
// chat backend. Configured entirely from flags; nil means "not configured".
type MediaService struct {
	endpoint string
	preset   string
	folder   string
	httpc    *http.Client
}

func NewMediaService(endpoint, preset, folder string) *MediaService {
	if endpoint == "" {
		return nil
	}
	return &MediaService{
		endpoint: endpoint,
		preset:   preset,
		folder:   folder,
		httpc:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Upload posts the file with the provider's preset/folder/public-id fields
// and returns the secure URL from the response.
func (s *MediaService) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	name := filepath.Base(path)
	publicID := strings.TrimSuffix(name, filepath.Ext(name))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	fields := map[string]string{
		"upload_preset": s.preset,
		"folder":        s.folder,
		"public_id":     publicID,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := s.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("media upload failed: %s: %s", res.Status, strings.TrimSpace(string(raw)))
	}
	return decodeUploadURL(res.Body)
}
