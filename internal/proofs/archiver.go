// Package proofs copies down payment proof images into S3 so staff can
// still review them after the Messenger CDN link expires.
package proofs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const (
	defaultDownloadTimeout = 5 * time.Second
	maxProofBytes          = 10 << 20
)

// S3API is the subset of the S3 client used by Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver downloads proof images and stores them under
// proofs/<actor>/<unix-millis>.<ext>.
type Archiver struct {
	bucket     string
	s3Client   S3API
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
	logger     *logging.Logger
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithHTTPClient overrides the client used to download proofs.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Archiver) { a.httpClient = c }
}

// WithDownloadTimeout bounds each download.
func WithDownloadTimeout(d time.Duration) Option {
	return func(a *Archiver) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithClock overrides the time source used in object keys.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// NewArchiver creates an Archiver. If bucket is empty, Enabled reports false.
func NewArchiver(s3Client S3API, bucket string, logger *logging.Logger, opts ...Option) *Archiver {
	if logger == nil {
		logger = logging.Default()
	}
	a := &Archiver{
		bucket:     bucket,
		s3Client:   s3Client,
		httpClient: http.DefaultClient,
		timeout:    defaultDownloadTimeout,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enabled returns true if archival is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil
}

// Archive fetches the image at rawURL and returns the stored object key.
func (a *Archiver) Archive(ctx context.Context, actorID, rawURL string) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("proofs: archive not configured")
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("proofs: invalid proof url %q", rawURL)
	}

	dlCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("proofs: create request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("proofs: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("proofs: download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProofBytes+1))
	if err != nil {
		return "", fmt.Errorf("proofs: read body: %w", err)
	}
	if len(data) > maxProofBytes {
		return "", fmt.Errorf("proofs: proof exceeds %d bytes", maxProofBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	key := fmt.Sprintf("proofs/%s/%d.%s", safeSegment(actorID), a.now().UnixMilli(), extension(contentType, u.Path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"actor-id": actorID},
	})
	if err != nil {
		return "", fmt.Errorf("proofs: s3 put %s: %w", key, err)
	}

	a.logger.Info("proofs: archived payment proof", "actor_id", actorID, "s3_key", key, "bytes", len(data))
	return key, nil
}

func extension(contentType, urlPath string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(strings.ToLower(mediaType)) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	}
	switch ext := strings.ToLower(strings.TrimPrefix(path.Ext(urlPath), ".")); ext {
	case "jpg", "jpeg":
		return "jpg"
	case "png", "gif", "webp":
		return ext
	}
	return "jpg"
}

// safeSegment keeps object keys to a single path segment per actor.
func safeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
