// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatasetCatalogueDocument(t *testing.T) {
	raw := map[string]interface{}{
		"@id": map[string]interface{}{
			"dataset_uuid": "ds-1",
			"version_uuid": "vs-1",
		},
		"dct:title":       "Rainfall",
		"dct:description": "Daily rainfall",
		"dcat:distribution": []interface{}{
			map[string]interface{}{
				"spdx:fileName":    "a.csv",
				"dcat:mediaType":   "text/csv",
				"dcat:byteSize":    float64(42),
				"dcat:downloadURL": "https://minio.example/a.csv",
			},
		},
	}

	d, err := parseDataset(raw)
	require.NoError(t, err)
	assert.Equal(t, "ds-1", d.ID)
	assert.Equal(t, "vs-1", d.VersionID)
	assert.Equal(t, "Rainfall", d.Title)
	require.Len(t, d.Files, 1)
	assert.Equal(t, "a.csv", d.Files[0].Name)
	assert.Equal(t, int64(42), d.Files[0].Size)
	assert.Equal(t, "https://minio.example/a.csv", d.Files[0].DownloadURL)
}

func TestParseDatasetFlatIdentifiers(t *testing.T) {
	d, err := parseDataset(map[string]interface{}{
		"id":         "ds-2",
		"version_id": "vs-2",
		"dct:title":  "Flat",
	})
	require.NoError(t, err)
	assert.Equal(t, "ds-2", d.ID)
	assert.Equal(t, "vs-2", d.VersionID)
}

func TestParseDatasetMissingIdentifier(t *testing.T) {
	_, err := parseDataset(map[string]interface{}{"dct:title": "Orphan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identifier")
}
