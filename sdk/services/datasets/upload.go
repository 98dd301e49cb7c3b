// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/auth"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/dafnierr"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/utils"
)

// Upload runs the end-to-end dataset submission: acquire a temporary
// bucket, upload every file, commit the metadata. The bucket is deleted on
// any failure path after acquisition, including context cancellation; the
// triggering error, not the cleanup error, is what the caller sees.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (result *UploadResult, err error) {
	if len(req.Metadata) == 0 {
		return nil, errors.New("metadata is required")
	}

	targets, err := GatherUploadTargets(req.Paths)
	if err != nil {
		return nil, err
	}

	bucketID, err := s.CreateTempBucket(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Debug().Str("bucket", bucketID).Msg("acquired temporary bucket")

	defer func() {
		if r := recover(); r != nil {
			s.cleanupBucket(ctx, bucketID)
			panic(r)
		}
		if err != nil {
			s.cleanupBucket(ctx, bucketID)
		}
	}()

	var progress *utils.Progress
	if !req.Quiet {
		var total int64
		for _, t := range targets {
			total += t.Size
		}
		progress = utils.NewProgress(total, len(targets))
	}

	if err = s.uploadFiles(ctx, bucketID, targets, progress); err != nil {
		return nil, err
	}

	result, err = s.commitMetadata(ctx, bucketID, req.Metadata, req.DatasetID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// cleanupBucket is the best-effort Failed-state transition: deletion
// failures are reported but never replace the original error.
func (s *Service) cleanupBucket(ctx context.Context, bucketID string) {
	// The surrounding operation may have failed through cancellation;
	// cleanup still has to reach the server.
	if err := s.DeleteTempBucket(context.WithoutCancel(ctx), bucketID); err != nil {
		s.log.Error().Str("bucket", bucketID).Err(err).
			Msg("failed to delete temporary bucket, it may need manual cleanup")
	}
}

// CreateTempBucket acquires a server-side staging bucket scoped to one
// upload operation.
func (s *Service) CreateTempBucket(ctx context.Context) (string, error) {
	url := utils.JoinURL(s.cfg.Platform.NIDURL, "nid", "upload") + "/"
	body, err := s.session.Post(ctx, url, &auth.RequestOptions{NoRedirect: true})
	if err != nil {
		return "", fmt.Errorf("failed to create temporary bucket: %w", err)
	}

	var bucketID string
	if err := json.Unmarshal(body, &bucketID); err != nil || bucketID == "" {
		return "", fmt.Errorf("unexpected temporary bucket response: %s", body)
	}
	return bucketID, nil
}

// DeleteTempBucket releases a staging bucket that was not committed.
func (s *Service) DeleteTempBucket(ctx context.Context, bucketID string) error {
	url := utils.JoinURL(s.cfg.Platform.NIDURL, "nid", "upload", bucketID) + "/"
	_, err := s.session.Delete(ctx, url, &auth.RequestOptions{NoRedirect: true})
	return err
}

// commitMetadata binds the metadata document to the uploaded bucket,
// scoped to an existing dataset for a version update. A platform-reported
// rejection here is semantic, never retried.
func (s *Service) commitMetadata(ctx context.Context, bucketID string, metadata map[string]interface{}, datasetID string) (*UploadResult, error) {
	url := utils.JoinURL(s.cfg.Platform.NIDURL, "nid", "dataset") + "/"
	if datasetID != "" {
		url = utils.JoinURL(s.cfg.Platform.NIDURL, "nid", "version", datasetID) + "/"
	}

	payload := map[string]interface{}{
		"bucketId": bucketID,
		"metadata": metadata,
	}

	var result UploadResult
	opts := &auth.RequestOptions{
		NoRedirect:     true,
		ErrorExtractor: metadataErrorExtractor,
	}
	if err := s.session.PostJSON(ctx, url, payload, &result, opts); err != nil {
		// Only a 4xx is a semantic rejection of the document; a 5xx with a
		// message body is still a platform failure.
		var dafniErr *dafnierr.DAFNIError
		if errors.As(err, &dafniErr) && dafniErr.IsRejection() {
			return nil, &dafnierr.ValidationError{Message: dafniErr.Message}
		}
		return nil, err
	}
	return &result, nil
}

// metadataErrorExtractor handles the dataset-specific validation shape,
// where messages arrive as a list under "metadata".
func metadataErrorExtractor(body map[string]interface{}) string {
	list, ok := body["metadata"].([]interface{})
	if !ok {
		return ""
	}
	msg := ""
	for _, el := range list {
		if s, ok := el.(string); ok {
			if msg != "" {
				msg += "\n"
			}
			msg += s
		}
	}
	return msg
}
