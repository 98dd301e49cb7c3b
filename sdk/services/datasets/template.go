// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"sigs.k8s.io/yaml"
)

// NewTemplate scaffolds a minimal metadata document for a new dataset,
// ready for the user to fill in and submit with `dafni create`.
func NewTemplate() map[string]interface{} {
	return map[string]interface{}{
		"dct:title":       "",
		"dct:description": "",
		"dct:identifier":  []string{uuid.NewString()},
		"dct:subject":     "",
		"dcat:theme":      []string{},
		"dct:language":    "en",
		"dcat:keyword":    []string{},
		"dct:license":     "https://creativecommons.org/licenses/by/4.0/",
		"dct:creator": []map[string]interface{}{
			{"@type": "foaf:Organization", "foaf:name": "", "@id": ""},
		},
		"dcat:contactPoint": map[string]interface{}{
			"@type":          "vcard:Organization",
			"vcard:fn":       "",
			"vcard:hasEmail": "",
		},
		"dafni_version_note": "Initial version",
	}
}

// WriteTemplate writes the scaffold as YAML, refusing to clobber an
// existing file.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	jsonBytes, err := json.Marshal(NewTemplate())
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}
	yamlBytes, err := yaml.JSONToYAML(jsonBytes)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	return os.WriteFile(path, yamlBytes, 0o644)
}
