// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package dafnierr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// MessageExtractor pulls an error message out of a decoded JSON error body.
// A non-empty return value takes precedence over the default extraction.
type MessageExtractor func(body map[string]interface{}) string

// Classify maps a platform response to a typed error, or nil for success.
//
// A 404 always becomes EndpointNotFoundError. For any other non-2xx status
// the body is probed for a message: a caller-supplied extractor first, then
// the known platform shapes. With no extractable message the original HTTP
// status is preserved in an HTTPError.
func Classify(resp *http.Response, body []byte, extractor MessageExtractor) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	url := ""
	if resp.Request != nil && resp.Request.URL != nil {
		url = resp.Request.URL.String()
	}

	if resp.StatusCode == http.StatusNotFound {
		return &EndpointNotFoundError{URL: url}
	}

	if msg := ExtractMessage(body, extractor); msg != "" {
		return &DAFNIError{Message: msg, StatusCode: resp.StatusCode}
	}
	return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, URL: url}
}

// ExtractMessage probes the heterogeneous error payload shapes the platform
// is known to produce, in priority order:
//
//  1. the caller-supplied extractor
//  2. a combined "error"/"error_message" pair
//  3. a list under "errors", one entry per line
//  4. a list under "metadata" (legacy dataset endpoint shape)
//
// A body that is not a JSON object yields no message.
func ExtractMessage(body []byte, extractor MessageExtractor) string {
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}

	if extractor != nil {
		if msg := extractor(m); msg != "" {
			return msg
		}
	}

	errName, hasErr := m["error"].(string)
	errMsg, hasMsg := m["error_message"].(string)
	if hasErr && hasMsg {
		return fmt.Sprintf("error: %s, error message: %s", errName, errMsg)
	}

	if lines := stringList(m["errors"]); len(lines) > 0 {
		return strings.Join(lines, "\n")
	}
	if lines := stringList(m["metadata"]); len(lines) > 0 {
		return strings.Join(lines, "\n")
	}
	return ""
}

func stringList(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, el := range list {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
