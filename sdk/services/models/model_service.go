// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

// Package models talks to the model catalogue: listing, fetching,
// deleting and uploading model versions.
package models

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
	if cfg.Platform.APIURL == "" {
		return nil, errors.New("invalid platform config")
	}
	return &Service{session: session, cfg: cfg, log: zerolog.Nop()}, nil
}

func (s *Service) WithLogger(l zerolog.Logger) *Service {
	s.log = l
	return s
}

// Get fetches a single model version.
func (s *Service) Get(ctx context.Context, versionID string) (*Model, error) {
	var m Model
	url := s.cfg.Platform.APIURL + "/models/" + versionID + "/"
	if err := s.session.GetJSON(ctx, url, &m, nil); err != nil {
		return nil, err
	}
	return &m, nil
}

// List fetches every model visible to the user.
func (s *Service) List(ctx context.Context) ([]Model, error) {
	var out []Model
	url := s.cfg.Platform.APIURL + "/models/"
	if err := s.session.GetJSON(ctx, url, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes one model version.
func (s *Service) Delete(ctx context.Context, versionID string) error {
	url := s.cfg.Platform.APIURL + "/models/" + versionID + "/"
	_, err := s.session.Delete(ctx, url, nil)
	return err
}
