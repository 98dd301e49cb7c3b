// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Outcome is the result of a confirmation prompt. Cancellation is an
// ordinary value checked by the caller, not an exception-style abort.
type Outcome int

const (
	Proceed Outcome = iota
	Cancelled
)

// Confirm prints msg and reads a y/n answer from r. assumeYes (the -y
// flag) short-circuits to Proceed without prompting.
func Confirm(r io.Reader, w io.Writer, msg string, assumeYes bool) (Outcome, error) {
	if assumeYes {
		return Proceed, nil
	}
	buf := bufio.NewReader(r)
	for {
		fmt.Fprintf(w, "%s (y/n): ", msg)
		line, err := buf.ReadString('\n')
		if err != nil && !(err == io.EOF && len(line) > 0) {
			return Cancelled, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return Proceed, nil
		case "n", "no":
			return Cancelled, nil
		default:
			fmt.Fprintln(w, "Invalid input, must be y or n")
		}
	}
}

func PrettyJSON(b []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return string(b) // fall back unindented
	}
	return out.String()
}

// JoinURL joins a base URL with path segments, normalising slashes.
func JoinURL(base string, parts ...string) string {
	url := strings.TrimSuffix(base, "/")
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			url += "/" + p
		}
	}
	return url
}

// GetStringValue reads a string field from a decoded JSON object, empty
// when missing or not a string.
func GetStringValue(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
