// Package archive ships run logs to an S3-compatible bucket.
package archive

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/chmdznr/folder-tidy/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// MarkerSuffix is appended to a log path to record a successful upload.
const MarkerSuffix = ".archived"

// ErrNotConfigured is returned when the archive section of the config is empty.
var ErrNotConfigured = errors.New("archive is not configured")

// Uploader pushes run logs to a bucket
type Uploader struct {
	client *minio.Client
	bucket string
	folder string
	host   string
	logger logrus.FieldLogger
}

// PushResult summarizes a push
type PushResult struct {
	Uploaded []string
	Skipped  []string
	Failed   map[string]error
}

// NewUploader creates a MinIO client for the configured archive
func NewUploader(cfg config.Archive, logger logrus.FieldLogger) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Transport:    tr,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}

	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		folder: cfg.Folder,
		host:   host,
		logger: logger,
	}, nil
}

// ObjectKey returns the object name a log file is stored under.
func (u *Uploader) ObjectKey(logPath string) string {
	return path.Join(u.folder, u.host, filepath.Base(logPath))
}

// Pending filters out logs that already carry an upload marker.
func Pending(logPaths []string) (pending, archived []string) {
	for _, p := range logPaths {
		if _, err := os.Stat(p + MarkerSuffix); err == nil {
			archived = append(archived, p)
			continue
		}
		pending = append(pending, p)
	}
	return pending, archived
}

// Push uploads every log that has not been archived yet. Individual upload
// failures are collected; the returned error covers bucket-level problems.
func (u *Uploader) Push(ctx context.Context, logPaths []string) (*PushResult, error) {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", u.bucket)
	}

	pending, archived := Pending(logPaths)
	res := &PushResult{Skipped: archived, Failed: make(map[string]error)}
	for _, logPath := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		key := u.ObjectKey(logPath)
		info, err := u.client.FPutObject(ctx, u.bucket, key, logPath, minio.PutObjectOptions{
			ContentType:  "text/plain; charset=utf-8",
			UserMetadata: map[string]string{"host": u.host},
		})
		if err != nil {
			if minioErr, ok := err.(minio.ErrorResponse); ok {
				u.logger.WithFields(logrus.Fields{
					"code":   minioErr.Code,
					"bucket": minioErr.BucketName,
					"key":    minioErr.Key,
				}).Warn(minioErr.Message)
			}
			res.Failed[logPath] = err
			continue
		}

		if err := os.WriteFile(logPath+MarkerSuffix, []byte(info.ETag+"\n"), 0o644); err != nil {
			u.logger.WithError(err).WithField("log", logPath).Warn("uploaded but could not write marker")
		}
		u.logger.WithFields(logrus.Fields{"key": key, "size": info.Size}).Info("archived run log")
		res.Uploaded = append(res.Uploaded, logPath)
	}
	return res, nil
}
