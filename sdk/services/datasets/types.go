// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"fmt"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/utils"
)

// Dataset is the typed record parsed out of a catalogue response.
type Dataset struct {
	ID          string
	VersionID   string
	Title       string
	Description string
	Subject     string
	Issued      string
	Modified    string
	Files       []DataFile
}

// DataFile describes one distributed file of a dataset version.
type DataFile struct {
	Name        string
	Size        int64
	ContentType string
	DownloadURL string
}

// parseDataset maps the raw catalogue document into the typed record.
// A document without identity fields is a parse error, not a silent
// zero value.
func parseDataset(raw map[string]interface{}) (*Dataset, error) {
	d := &Dataset{
		Title:       utils.GetStringValue(raw, "dct:title"),
		Description: utils.GetStringValue(raw, "dct:description"),
		Subject:     utils.GetStringValue(raw, "dct:subject"),
		Issued:      utils.GetStringValue(raw, "dct:issued"),
		Modified:    utils.GetStringValue(raw, "dct:modified"),
	}

	if id, ok := raw["@id"].(map[string]interface{}); ok {
		d.ID = utils.GetStringValue(id, "dataset_uuid")
		d.VersionID = utils.GetStringValue(id, "version_uuid")
	}
	if d.ID == "" {
		// catalogue search hits carry flat identifiers
		d.ID = utils.GetStringValue(raw, "id")
		d.VersionID = utils.GetStringValue(raw, "version_id")
	}
	if d.ID == "" {
		return nil, fmt.Errorf("dataset document is missing its identifier")
	}

	if dist, ok := raw["dcat:distribution"].([]interface{}); ok {
		for _, el := range dist {
			f, ok := el.(map[string]interface{})
			if !ok {
				continue
			}
			file := DataFile{
				Name:        utils.GetStringValue(f, "spdx:fileName"),
				ContentType: utils.GetStringValue(f, "dcat:mediaType"),
				DownloadURL: utils.GetStringValue(f, "dcat:downloadURL"),
			}
			if size, ok := f["dcat:byteSize"].(float64); ok {
				file.Size = int64(size)
			}
			d.Files = append(d.Files, file)
		}
	}
	return d, nil
}

// UploadTarget maps a relative file name, used as the server-side object
// key, to a local path.
type UploadTarget struct {
	Name string
	Path string
	Size int64
}

// UploadRequest describes one dataset upload operation.
type UploadRequest struct {
	// Metadata is the document committed against the temporary bucket.
	Metadata map[string]interface{}
	// Paths lists local files and directories; directories are expanded
	// recursively with their folder structure preserved.
	Paths []string
	// DatasetID scopes the commit to an existing dataset (new version).
	// Empty means a brand-new dataset.
	DatasetID string
	// Quiet suppresses progress rendering (JSON output mode).
	Quiet bool
}

// UploadResult reports the committed dataset identity.
type UploadResult struct {
	DatasetID string `json:"datasetId"`
	VersionID string `json:"versionId"`
}
