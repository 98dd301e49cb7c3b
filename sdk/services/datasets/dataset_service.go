// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

// Package datasets drives the dataset catalogue and the multi-step dataset
// upload workflow against the data-upload service.
package datasets

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/auth"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/config"
)

type Service struct {
	session *auth.Session
	cfg     config.Config
	log     zerolog.Logger
}

func NewService(session *auth.Session, cfg config.Config) (*Service, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}
	if cfg.Platform.NIDURL == "" || cfg.Platform.APIURL == "" {
		return nil, errors.New("invalid platform config")
	}
	if cfg.MaxUploadAttempts <= 0 {
		cfg.MaxUploadAttempts = config.DefaultMaxUploadAttempts
	}
	return &Service{session: session, cfg: cfg, log: zerolog.Nop()}, nil
}

// WithLogger returns the service logging through l.
func (s *Service) WithLogger(l zerolog.Logger) *Service {
	s.log = l
	return s
}

// Get fetches one dataset version by its version id.
func (s *Service) Get(ctx context.Context, versionID string) (*Dataset, error) {
	url := s.datasetURL(versionID)
	var raw map[string]interface{}
	if err := s.session.GetJSON(ctx, url, &raw, nil); err != nil {
		return nil, err
	}
	return parseDataset(raw)
}

// GetMetadata fetches the raw metadata document of a dataset version, the
// form consumed by the upload flows.
func (s *Service) GetMetadata(ctx context.Context, versionID string) (map[string]interface{}, error) {
	url := s.datasetURL(versionID)
	var raw map[string]interface{}
	if err := s.session.GetJSON(ctx, url, &raw, nil); err != nil {
		return nil, err
	}
	if meta, ok := raw["metadata"].(map[string]interface{}); ok {
		return meta, nil
	}
	return raw, nil
}

// List queries the catalogue with an optional free-text filter.
func (s *Service) List(ctx context.Context, searchText string) ([]Dataset, error) {
	body := map[string]interface{}{
		"offset":     map[string]int{"start": 0, "size": 1000},
		"sort_by":    "date",
		"sort_order": "descending",
	}
	if searchText != "" {
		body["search_text"] = searchText
	}

	var out struct {
		Metadata []map[string]interface{} `json:"metadata"`
	}
	url := s.cfg.Platform.APIURL + "/catalogue/"
	if err := s.session.PostJSON(ctx, url, body, &out, nil); err != nil {
		return nil, err
	}

	datasets := make([]Dataset, 0, len(out.Metadata))
	for _, m := range out.Metadata {
		d, err := parseDataset(m)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, *d)
	}
	return datasets, nil
}

// Delete removes a whole dataset, all versions included.
func (s *Service) Delete(ctx context.Context, datasetID string) error {
	url := s.cfg.Platform.APIURL + "/datasets/" + datasetID
	_, err := s.session.Delete(ctx, url, nil)
	return err
}

// DeleteVersion removes a single dataset version.
func (s *Service) DeleteVersion(ctx context.Context, versionID string) error {
	url := s.cfg.Platform.APIURL + "/datasets/version/" + versionID
	_, err := s.session.Delete(ctx, url, nil)
	return err
}

func (s *Service) datasetURL(versionID string) string {
	return s.cfg.Platform.APIURL + "/datasets/" + versionID
}
