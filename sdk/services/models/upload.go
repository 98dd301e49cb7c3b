// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/auth"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/dafnierr"
)

// ValidateDefinition submits a model definition for validation without
// uploading anything. A platform rejection surfaces as a ValidationError.
func (s *Service) ValidateDefinition(ctx context.Context, definitionPath string) error {
	f, err := os.Open(definitionPath)
	if err != nil {
		return fmt.Errorf("failed to open definition: %w", err)
	}
	defer f.Close()

	validateURL := s.cfg.Platform.APIURL + "/models/definition/validate/"
	opts := &auth.RequestOptions{
		Body:           f,
		ContentType:    "application/yaml",
		ErrorExtractor: definitionErrorExtractor,
	}
	_, err = s.session.Put(ctx, validateURL, opts)

	var dafniErr *dafnierr.DAFNIError
	if errors.As(err, &dafniErr) && dafniErr.IsRejection() {
		return &dafnierr.ValidationError{Message: dafniErr.Message}
	}
	return err
}

// Upload pushes a model definition and container image and starts the
// ingest. The definition is validated first so a bad document fails before
// any bytes move.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (string, error) {
	if err := s.ValidateDefinition(ctx, req.DefinitionPath); err != nil {
		return "", err
	}

	urls, err := s.requestUploadURLs(ctx)
	if err != nil {
		return "", err
	}
	s.log.Debug().Str("upload_id", urls.ID).Msg("acquired model upload id")

	if err := s.putPart(ctx, urls.URLs.Definition, req.DefinitionPath, "application/yaml"); err != nil {
		return "", fmt.Errorf("definition upload failed: %w", err)
	}
	if err := s.putPart(ctx, urls.URLs.Image, req.ImagePath, "application/octet-stream"); err != nil {
		return "", fmt.Errorf("image upload failed: %w", err)
	}

	return urls.ID, s.startIngest(ctx, urls.ID, req)
}

func (s *Service) requestUploadURLs(ctx context.Context) (*uploadURLs, error) {
	var out uploadURLs
	uploadURL := s.cfg.Platform.APIURL + "/models/upload/"
	body := map[string]bool{"image": true, "definition": true}
	if err := s.session.PostJSON(ctx, uploadURL, body, &out, nil); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("model upload endpoint returned no upload id")
	}
	return &out, nil
}

func (s *Service) putPart(ctx context.Context, target, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	_, err = s.session.Put(ctx, target, &auth.RequestOptions{
		Body:        f,
		ContentType: contentType,
		NoRedirect:  true,
	})
	return err
}

func (s *Service) startIngest(ctx context.Context, uploadID string, req UploadRequest) error {
	startURL := s.cfg.Platform.APIURL + "/models/upload/" + uploadID + "/start/"
	params := url.Values{}
	if req.VersionMessage != "" {
		params.Set("version_message", req.VersionMessage)
	}
	if req.ParentID != "" {
		params.Set("model_id", req.ParentID)
	}
	if enc := params.Encode(); enc != "" {
		startURL += "?" + enc
	}

	_, err := s.session.Post(ctx, startURL, nil)
	return err
}

// definitionErrorExtractor reads the validation shape specific to model
// definitions, a list of messages under "errors" plus an optional summary.
func definitionErrorExtractor(body map[string]interface{}) string {
	list, ok := body["errors"].([]interface{})
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
