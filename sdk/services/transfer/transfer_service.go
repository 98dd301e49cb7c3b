// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

// Package transfer moves dataset files between the platform's object store
// and the local machine.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/auth"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/config"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/services/datasets"
)

type Service struct {
	session  *auth.Session
	datasets *datasets.Service
	cfg      config.Config
	// s3 is the optional direct object-store backend, enabled when store
	// credentials are configured. Pre-signed HTTP is the default path.
	s3  *config.S3Client
	log zerolog.Logger
}

func NewService(ctx context.Context, session *auth.Session, cfg config.Config) (*Service, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}

	ds, err := datasets.NewService(session, cfg)
	if err != nil {
		return nil, err
	}

	s := &Service{session: session, datasets: ds, cfg: cfg, log: zerolog.Nop()}

	if cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" {
		s3c, err := config.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("S3 init failed: %w", err)
		}
		s.s3 = s3c
	}
	return s, nil
}

func (s *Service) WithLogger(l zerolog.Logger) *Service {
	s.log = l
	return s
}

// DownloadRequest describes one dataset download.
type DownloadRequest struct {
	// VersionID selects the dataset version whose files are fetched.
	VersionID string
	// Destination is the local directory files land in; folder structure
	// from the object keys is preserved beneath it.
	Destination string
	// Quiet suppresses progress rendering.
	Quiet bool
}

// DownloadInfo reports one downloaded file.
type DownloadInfo struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Path     string `json:"path"`
}
