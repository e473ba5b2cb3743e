package delivery

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Sender pushes a finished archive to the delivery endpoint, typically
// the chat gateway that relays it to the user. The archive is streamed,
// so the signature covers the request metadata rather than the body:
// "<timestamp>:<user id>:<archive name>:<size>" keyed with the shared
// secret. A failed delivery is terminal; the pipeline does not retry.
type Sender struct {
	endpoint   string
	secret     string
	httpClient *http.Client
}

type Config struct {
	Endpoint string
	Secret   string
	Timeout  time.Duration
}

func NewSender(config Config) *Sender {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &Sender{
		endpoint: config.Endpoint,
		secret:   config.Secret,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

func (s *Sender) Send(ctx context.Context, userID int64, archiveName string, archive io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, archive)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = size

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/zip")
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archiveName))
	req.Header.Set("X-Bundler-User", strconv.FormatInt(userID, 10))
	req.Header.Set("X-Bundler-Timestamp", timestamp)
	if s.secret != "" {
		req.Header.Set("X-Bundler-Signature", s.sign(timestamp, userID, archiveName, size))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("http error: %d", resp.StatusCode)
	}

	return nil
}

func (s *Sender) sign(timestamp string, userID int64, archiveName string, size int64) string {
	h := hmac.New(sha256.New, []byte(s.secret))
	fmt.Fprintf(h, "%s:%d:%s:%d", timestamp, userID, archiveName, size)
	return hex.EncodeToString(h.Sum(nil))
}
