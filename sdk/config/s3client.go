// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client is the direct object-store backend, used for dataset downloads
// when store credentials are configured instead of pre-signed HTTP.
type S3Client struct {
	s3 *s3.Client
}

func NewS3Client(ctx context.Context, cfgCreds S3Config) (*S3Client, error) {
	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		cfgCreds.AccessKey,
		cfgCreds.SecretKey,
		cfgCreds.AccessToken,
	))

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(cfgCreds.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Options := func(o *s3.Options) {
		if cfgCreds.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfgCreds.EndpointURL)
			o.UsePathStyle = true // required by most S3-compatible stores
		}
	}

	return &S3Client{
		s3: s3.NewFromConfig(cfg, s3Options),
	}, nil
}

type S3File struct {
	Path         string
	Name         string
	Size         int64
	LastModified string
}

/* -------------------- LIST (paged) -------------------- */

// ListFilesPaged returns one page of objects under a prefix. Zero-size keys
// ending in "/" are folder placeholders and are skipped.
func (c *S3Client) ListFilesPaged(
	ctx context.Context,
	bucket string,
	prefix string,
	maxKeys *int32,
	continuationToken *string,
) ([]S3File, *string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:            aws.String(bucket),
		Prefix:            aws.String(prefix),
		MaxKeys:           maxKeys,
		ContinuationToken: continuationToken,
	}

	resp, err := c.s3.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list objects in S3: %w", err)
	}

	files := make([]S3File, 0, len(resp.Contents))
	for _, obj := range resp.Contents {
		key := aws.ToString(obj.Key)
		if strings.HasSuffix(key, "/") && aws.ToInt64(obj.Size) == 0 {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		files = append(files, S3File{
			Path:         key,
			Name:         name,
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified).Format(time.RFC3339),
		})
	}

	return files, resp.NextContinuationToken, nil
}

// ListFilesAll walks every page of a prefix listing.
func (c *S3Client) ListFilesAll(ctx context.Context, bucket string, prefix string) ([]S3File, error) {
	var allFiles []S3File
	var token *string
	max := int32(1000)

	for {
		files, nextToken, err := c.ListFilesPaged(ctx, bucket, prefix, &max, token)
		if err != nil {
			return nil, err
		}
		allFiles = append(allFiles, files...)
		if nextToken == nil || *nextToken == "" {
			break
		}
		token = nextToken
	}
	return allFiles, nil
}

/* -------------------- PROGRESS HOOK -------------------- */

type ProgressHook struct {
	OnStart    func(key string, totalBytes int64)
	OnProgress func(key string, written, totalBytes int64)
	OnDone     func(key string, totalBytes int64, took time.Duration)
}

type progressWriter struct {
	key        string
	total      int64
	written    int64
	lastEmit   time.Time
	interval   time.Duration
	onProgress func(key string, written, total int64)
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.written += int64(n)
	now := time.Now()
	if pw.onProgress != nil && (pw.written == pw.total || now.Sub(pw.lastEmit) >= pw.interval) {
		pw.onProgress(pw.key, pw.written, pw.total)
		pw.lastEmit = now
	}
	return n, nil
}

/* -------------------- DOWNLOAD -------------------- */

// DownloadFile fetches a whole object via the transfer manager, which
// parallelises range requests for large objects.
func (c *S3Client) DownloadFile(ctx context.Context, bucket, key, localPath string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer f.Close()

	_, err = manager.NewDownloader(c.s3).Download(ctx, f, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("failed to get object from S3: %w", err)
	}
	return nil
}

func (c *S3Client) DownloadFileWithProgress(
	ctx context.Context,
	bucket, key, localPath string,
	hook *ProgressHook,
) error {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer out.Body.Close()

	total := aws.ToInt64(out.ContentLength)

	if hook != nil && hook.OnStart != nil {
		hook.OnStart(key, total)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer f.Close()

	pw := &progressWriter{
		key:      key,
		total:    total,
		interval: 250 * time.Millisecond,
	}
	if hook != nil {
		pw.onProgress = hook.OnProgress
	}

	start := time.Now()
	tee := io.TeeReader(out.Body, pw)

	if _, err := io.Copy(f, tee); err != nil {
		return fmt.Errorf("failed to write to local file: %w", err)
	}

	if hook != nil && hook.OnDone != nil {
		hook.OnDone(key, total, time.Since(start))
	}
	return nil
}
