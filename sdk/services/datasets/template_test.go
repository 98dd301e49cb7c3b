// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/utils"
)

func TestWriteTemplateRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.yaml")
	require.NoError(t, WriteTemplate(path))

	doc, err := utils.LoadDocument(path)
	require.NoError(t, err)
	assert.Contains(t, doc, "dct:title")
	assert.NotEmpty(t, doc["dct:identifier"])
}

func TestWriteTemplateRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.yaml")
	require.NoError(t, os.WriteFile(path, []byte("precious"), 0o644))

	err := WriteTemplate(path)
	require.Error(t, err)

	b, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "precious", string(b))
}
