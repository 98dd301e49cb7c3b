// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package workflows

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/auth"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/dafnierr"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/utils"
)

// Upload submits a workflow definition (YAML or JSON file), optionally as
// a new version of an existing workflow.
func (s *Service) Upload(ctx context.Context, definitionPath, versionMessage, parentID string) (*Workflow, error) {
	doc, err := utils.LoadDocument(definitionPath)
	if err != nil {
		return nil, err
	}
	if versionMessage != "" {
		doc["version_message"] = versionMessage
	}
	if parentID != "" {
		doc["parent"] = parentID
	}

	var w Workflow
	url := s.cfg.Platform.APIURL + "/workflows/"
	if err := s.session.PostJSON(ctx, url, doc, &w, nil); err != nil {
		return nil, err
	}
	return &w, nil
}

// UploadParameterSet submits a parameter-set definition. Validation
// failures reported by the platform surface as ValidationError.
func (s *Service) UploadParameterSet(ctx context.Context, definitionPath string) (*ParameterSet, error) {
	doc, err := utils.LoadDocument(definitionPath)
	if err != nil {
		return nil, err
	}

	var ps ParameterSet
	url := s.cfg.Platform.APIURL + "/workflows/parameter-sets/"
	opts := &auth.RequestOptions{ErrorExtractor: parameterSetErrorExtractor}
	err = s.session.PostJSON(ctx, url, doc, &ps, opts)

	var dafniErr *dafnierr.DAFNIError
	if errors.As(err, &dafniErr) && dafniErr.IsRejection() {
		return nil, &dafnierr.ValidationError{Message: dafniErr.Message}
	}
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

// parameterSetErrorExtractor reads the parameter-set validation shape: a
// map of parameter name to a list of problems.
func parameterSetErrorExtractor(body map[string]interface{}) string {
	params, ok := body["parameters"].(map[string]interface{})
	if !ok {
		return ""
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	msg := ""
	for _, name := range names {
		list, ok := params[name].([]interface{})
		if !ok {
			continue
		}
		for _, el := range list {
			if s, ok := el.(string); ok {
				if msg != "" {
					msg += "\n"
				}
				msg += fmt.Sprintf("%s: %s", name, s)
			}
		}
	}
	return msg
}
