// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package models

// Model is the typed record for one model version.
type Model struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"display_name"`
	Summary         string   `json:"summary"`
	Description     string   `json:"description"`
	PublicationDate string   `json:"publication_date"`
	ParentID        string   `json:"parent"`
	VersionTags     []string `json:"version_tags"`
	VersionMessage  string   `json:"version_message"`
	IngestStatus    string   `json:"ingest_completed_status"`
}

// UploadRequest describes a model version upload.
type UploadRequest struct {
	// DefinitionPath points at the model definition YAML.
	DefinitionPath string
	// ImagePath points at the exported container image tarball.
	ImagePath string
	// VersionMessage annotates the new version.
	VersionMessage string
	// ParentID scopes the upload to an existing model lineage. Empty
	// creates a new model.
	ParentID string
}

// uploadURLs is the per-part pre-signed URL set the upload endpoint hands
// back for one upload id.
type uploadURLs struct {
	ID   string `json:"id"`
	URLs struct {
		Definition string `json:"definition"`
		Image      string `json:"image"`
	} `json:"urls"`
}
