// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/auth"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/config"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/dafnierr"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/services/datasets"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/utils"
)

// remoteFile is one resolved download: a local name plus the location the
// bytes come from, either a pre-signed HTTP URL or an s3://bucket/key.
type remoteFile struct {
	name   string
	size   int64
	source string
}

// Download fetches every file of a dataset version into the destination
// directory, preserving the folder structure encoded in the file names.
// Pre-signed HTTP URLs are streamed through the authenticated session;
// s3:// locations go through the direct object-store backend when it is
// configured.
func (s *Service) Download(ctx context.Context, req DownloadRequest) ([]DownloadInfo, error) {
	dataset, err := s.datasets.Get(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}
	files, err := s.resolveFiles(ctx, dataset.Files)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("dataset version %s has no files to download", req.VersionID)
	}

	dest := req.Destination
	if dest == "" {
		dest = "."
	}

	var progress *utils.Progress
	if !req.Quiet {
		var total int64
		for _, f := range files {
			total += f.size
		}
		progress = utils.NewProgress(total, len(files))
	}

	infos := make([]DownloadInfo, 0, len(files))
	for _, f := range files {
		target := filepath.Join(dest, filepath.FromSlash(f.name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create local directory: %w", err)
		}

		var size int64
		if strings.HasPrefix(f.source, "s3://") {
			size, err = s.downloadS3(ctx, f.source, target, progress)
		} else {
			size, err = s.downloadHTTP(ctx, f.source, target, progress)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", f.name, err)
		}

		s.log.Debug().Str("file", f.name).Int64("bytes", size).Msg("file downloaded")
		progress.FileDone()
		progress.Render(true)
		infos = append(infos, DownloadInfo{Filename: f.name, Size: size, Path: target})
	}
	progress.Done()

	return infos, nil
}

// resolveFiles expands s3:// folder locations into their individual
// objects, so counts and sizes are known before any bytes move.
func (s *Service) resolveFiles(ctx context.Context, files []datasets.DataFile) ([]remoteFile, error) {
	out := make([]remoteFile, 0, len(files))
	for _, f := range files {
		if f.DownloadURL == "" {
			return nil, fmt.Errorf("file %s has no download location", f.Name)
		}
		if strings.HasPrefix(f.DownloadURL, "s3://") && strings.HasSuffix(f.DownloadURL, "/") {
			expanded, err := s.expandFolder(ctx, f)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
			continue
		}
		out = append(out, remoteFile{name: f.Name, size: f.Size, source: f.DownloadURL})
	}
	return out, nil
}

func (s *Service) expandFolder(ctx context.Context, f datasets.DataFile) ([]remoteFile, error) {
	if s.s3 == nil {
		return nil, fmt.Errorf("no object-store credentials configured for %s", f.DownloadURL)
	}
	u, err := url.Parse(f.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("invalid object-store location: %w", err)
	}
	bucket := u.Host
	prefix := strings.TrimPrefix(u.Path, "/")

	listed, err := s.s3.ListFilesAll(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", f.DownloadURL, err)
	}

	base := strings.TrimSuffix(f.Name, "/")
	out := make([]remoteFile, 0, len(listed))
	for _, obj := range listed {
		name := obj.Name
		if base != "" {
			name = base + "/" + obj.Name
		}
		out = append(out, remoteFile{
			name:   name,
			size:   obj.Size,
			source: "s3://" + bucket + "/" + obj.Path,
		})
	}
	return out, nil
}

// downloadHTTP streams a pre-signed URL through the session, which applies
// cookie authentication for object-store prefixes.
func (s *Service) downloadHTTP(ctx context.Context, downloadURL, target string, progress *utils.Progress) (int64, error) {
	resp, err := s.session.Stream(ctx, "GET", downloadURL, &auth.RequestOptions{NoRedirect: true})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return 0, dafnierr.Classify(resp, body, nil)
	}

	f, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("failed to create local file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, io.TeeReader(resp.Body, &progressTap{progress: progress}))
	if err != nil {
		return 0, fmt.Errorf("transfer interrupted: %w", err)
	}
	return written, nil
}

// downloadS3 fetches a single s3://bucket/key object through the direct
// backend. Without a progress line the transfer manager is used, which
// parallelises range requests for large objects.
func (s *Service) downloadS3(ctx context.Context, rawURL, target string, progress *utils.Progress) (int64, error) {
	if s.s3 == nil {
		return 0, fmt.Errorf("no object-store credentials configured for %s", rawURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("invalid object-store location: %w", err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	if progress == nil {
		if err := s.s3.DownloadFile(ctx, bucket, key, target); err != nil {
			return 0, err
		}
	} else {
		var prev int64
		hook := &config.ProgressHook{
			OnProgress: func(_ string, written, _ int64) {
				progress.Add(written - prev)
				prev = written
				progress.Render(false)
			},
		}
		if err := s.s3.DownloadFileWithProgress(ctx, bucket, key, target, hook); err != nil {
			return 0, err
		}
	}

	st, err := os.Stat(target)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// progressTap counts streamed bytes into the shared progress line.
type progressTap struct {
	progress *utils.Progress
}

func (t *progressTap) Write(p []byte) (int, error) {
	t.progress.Add(int64(len(p)))
	t.progress.Render(false)
	return len(p), nil
}
