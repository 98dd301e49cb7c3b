// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/auth"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/dafnierr"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/utils"
)

// GatherUploadTargets expands the given files and directories into the
// full set of upload targets. Directories are walked recursively and their
// regular files keyed by path relative to the directory, preserving folder
// structure. Duplicate names within one upload are an error.
func GatherUploadTargets(paths []string) ([]UploadTarget, error) {
	var targets []UploadTarget
	seen := map[string]string{}

	add := func(name, path string, size int64) error {
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("duplicate file name %q (%s and %s)", name, prev, path)
		}
		seen[name] = path
		targets = append(targets, UploadTarget{Name: name, Path: path, Size: size})
		return nil
	}

	for _, path := range paths {
		st, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", path, err)
		}

		if !st.IsDir() {
			if err := add(st.Name(), path, st.Size()); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(path, p)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			return add(filepath.ToSlash(rel), p, info.Size())
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
	}

	if len(targets) == 0 {
		return nil, errors.New("no files to upload")
	}
	return targets, nil
}

// uploadURL requests one pre-signed upload URL, scoped to a single object
// key within the temporary bucket.
func (s *Service) uploadURL(ctx context.Context, bucketID, fileName string) (string, error) {
	var out struct {
		PresignedURL string `json:"presigned_url"`
	}
	url := utils.JoinURL(s.cfg.Platform.NIDURL, "nid", "upload", bucketID) + "/"
	body := map[string]string{"file_name": fileName}
	if err := s.session.PostJSON(ctx, url, body, &out, &auth.RequestOptions{NoRedirect: true}); err != nil {
		return "", err
	}
	if out.PresignedURL == "" {
		return "", fmt.Errorf("no upload URL returned for %s", fileName)
	}
	return out.PresignedURL, nil
}

// uploadFiles pushes every target into the temporary bucket, sequentially.
// A failed attempt gets a fresh pre-signed URL each retry, bounded by the
// configured attempt budget; exhaustion fails the whole upload.
func (s *Service) uploadFiles(ctx context.Context, bucketID string, targets []UploadTarget, progress *utils.Progress) error {
	for _, t := range targets {
		if err := s.uploadFile(ctx, bucketID, t, progress); err != nil {
			return err
		}
		progress.FileDone()
		progress.Render(true)
	}
	progress.Done()
	return nil
}

func (s *Service) uploadFile(ctx context.Context, bucketID string, t UploadTarget, progress *utils.Progress) error {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxUploadAttempts; attempt++ {
		if attempt > 1 {
			s.log.Warn().Str("file", t.Name).Int("attempt", attempt).
				Msgf("retrying upload: %v", lastErr)
		}

		url, err := s.uploadURL(ctx, bucketID, t.Name)
		if err != nil {
			lastErr = err
		} else {
			lastErr = s.putFile(ctx, url, t, progress)
			if lastErr == nil {
				return nil
			}
		}

		if !transient(lastErr) {
			return lastErr
		}
	}
	return &dafnierr.FileUploadError{Name: t.Name, Attempts: s.cfg.MaxUploadAttempts, Err: lastErr}
}

// putFile performs the physical PUT to the pre-signed URL. The body is a
// seekable counting reader, so the session's refresh-and-retry cycle can
// rewind it; the OnRetry hook rewinds the progress count with it.
func (s *Service) putFile(ctx context.Context, url string, t UploadTarget, progress *utils.Progress) error {
	f, err := os.Open(t.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", t.Path, err)
	}
	defer f.Close()

	body := &countingReader{f: f, progress: progress}
	opts := &auth.RequestOptions{
		Body:        body,
		ContentType: "application/octet-stream",
		NoRedirect:  true,
		OnRetry:     func() { body.resetCount() },
	}
	_, err = s.session.Put(ctx, url, opts)
	if err != nil {
		body.resetCount()
	}
	return err
}

// transient reports whether an upload error is worth a fresh attempt.
// Authentication exhaustion, terminal login failures and context
// cancellation are not.
func transient(err error) bool {
	var authErr *dafnierr.AuthenticationError
	var loginErr *dafnierr.LoginError
	if errors.As(err, &authErr) || errors.As(err, &loginErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// countingReader feeds upload progress as the transport consumes the file.
type countingReader struct {
	f        *os.File
	progress *utils.Progress
	read     int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.f.Read(p)
	if n > 0 {
		c.read += int64(n)
		c.progress.Add(int64(n))
		c.progress.Render(false)
	}
	return n, err
}

func (c *countingReader) Seek(offset int64, whence int) (int64, error) {
	return c.f.Seek(offset, whence)
}

// resetCount rewinds the progress contribution of this file so a retried
// upload does not double-count.
func (c *countingReader) resetCount() {
	c.progress.Sub(c.read)
	c.read = 0
	c.progress.Render(true)
}
