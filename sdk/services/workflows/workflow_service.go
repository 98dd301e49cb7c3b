// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

// Package workflows covers the workflow catalogue, workflow uploads and
// parameter-set validation.
package workflows

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

// Workflow is the typed record for one workflow version.
type Workflow struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"display_name"`
	Summary         string   `json:"summary"`
	PublicationDate string   `json:"publication_date"`
	ParentID        string   `json:"parent"`
	VersionTags     []string `json:"version_tags"`
	VersionMessage  string   `json:"version_message"`
}

// Instance is one execution of a workflow.
type Instance struct {
	ID             string `json:"instance_id"`
	WorkflowID     string `json:"workflow_id"`
	SubmissionTime string `json:"submission_time"`
	FinishedTime   string `json:"finished_time"`
	Status         string `json:"overall_status"`
}

// ParameterSet binds parameter values to a workflow.
type ParameterSet struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	WorkflowID  string `json:"workflow"`
	Publisher   string `json:"publisher"`
}

func (s *Service) Get(ctx context.Context, versionID string) (*Workflow, error) {
	var w Workflow
	url := s.cfg.Platform.APIURL + "/workflows/" + versionID + "/"
	if err := s.session.GetJSON(ctx, url, &w, nil); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Service) List(ctx context.Context) ([]Workflow, error) {
	var out []Workflow
	url := s.cfg.Platform.APIURL + "/workflows/"
	if err := s.session.GetJSON(ctx, url, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, versionID string) error {
	url := s.cfg.Platform.APIURL + "/workflows/" + versionID + "/"
	_, err := s.session.Delete(ctx, url, nil)
	return err
}

// GetInstance fetches one workflow execution.
func (s *Service) GetInstance(ctx context.Context, instanceID string) (*Instance, error) {
	var in Instance
	url := s.cfg.Platform.APIURL + "/workflows/instances/" + instanceID + "/"
	if err := s.session.GetJSON(ctx, url, &in, nil); err != nil {
		return nil, err
	}
	return &in, nil
}

// ListInstances fetches the executions of one workflow version.
func (s *Service) ListInstances(ctx context.Context, versionID string) ([]Instance, error) {
	var out struct {
		Instances []Instance `json:"instances"`
	}
	url := s.cfg.Platform.APIURL + "/workflows/" + versionID + "/instances/"
	if err := s.session.GetJSON(ctx, url, &out, nil); err != nil {
		return nil, err
	}
	return out.Instances, nil
}

// GetParameterSet fetches one parameter set.
func (s *Service) GetParameterSet(ctx context.Context, id string) (*ParameterSet, error) {
	var ps ParameterSet
	url := s.cfg.Platform.APIURL + "/workflows/parameter-sets/" + id + "/"
	if err := s.session.GetJSON(ctx, url, &ps, nil); err != nil {
		return nil, err
	}
	return &ps, nil
}
