package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	redisclient "github.com/himanstore/dmsales-backend/internal/clients/redis"
	"github.com/himanstore/dmsales-backend/internal/pkg/httpx"
	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/utils"
)

// MediaService fetches story frames, post images and customer photos by
// URL. Bytes are cached in redis so a pointer that fans out across many
// conversations hits the CDN once.
type MediaService interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
	// FetchAsDataURL returns the media as a data: URL suitable for
	// multimodal model input.
	FetchAsDataURL(ctx context.Context, url string) (string, error)
}

type mediaService struct {
	log        *logger.Logger
	cache      redisclient.MediaCache
	httpClient *http.Client
	maxBytes   int64
	maxRetries int
}

func NewMediaService(log *logger.Logger, cache redisclient.MediaCache) MediaService {
	timeoutSec := utils.GetEnvAsInt("MEDIA_FETCH_TIMEOUT_SECONDS", 20, log)
	maxMB := utils.GetEnvAsInt("MEDIA_MAX_MB", 8, log)
	return &mediaService{
		log:        log.With("service", "MediaService"),
		cache:      cache,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxBytes:   int64(maxMB) << 20,
		maxRetries: 2,
	}
}

func (s *mediaService) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, "", fmt.Errorf("media url required")
	}

	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, url); err != nil {
			s.log.Warn("media cache read failed", "error", err.Error())
		} else if ok {
			return data, sniffMime(data), nil
		}
	}

	data, mime, err := s.download(ctx, url)
	if err != nil {
		return nil, "", err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, url, data); err != nil {
			s.log.Warn("media cache write failed", "error", err.Error())
		}
	}
	return data, mime, nil
}

func (s *mediaService) download(ctx context.Context, url string) ([]byte, string, error) {
	backoff := 500 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
			_ = resp.Body.Close()
			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300 && readErr == nil:
				if int64(len(body)) > s.maxBytes {
					return nil, "", fmt.Errorf("media exceeds %d bytes", s.maxBytes)
				}
				mime := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
				if mime == "" {
					mime = sniffMime(body)
				}
				return body, mime, nil
			case readErr != nil:
				lastErr = readErr
			default:
				lastErr = fmt.Errorf("media fetch http %d", resp.StatusCode)
				if !httpx.IsRetryableHTTPStatus(resp.StatusCode) {
					return nil, "", lastErr
				}
			}
		}

		if attempt == s.maxRetries {
			break
		}
		time.Sleep(httpx.JitterSleep(backoff))
		backoff *= 2
	}
	return nil, "", fmt.Errorf("media fetch failed: %w", lastErr)
}

func (s *mediaService) FetchAsDataURL(ctx context.Context, url string) (string, error) {
	data, mime, err := s.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func sniffMime(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return http.DetectContentType(data)
}
