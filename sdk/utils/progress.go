// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"fmt"
	"io"
	"os"
	"time"
)

/* ------------ tiny UI helpers for single-line progress ------------ */

// Progress renders aggregate transfer progress on a single stderr line.
// It is an observability side effect only; a nil *Progress is a valid
// no-op receiver, which is how JSON output mode disables it.
type Progress struct {
	w          io.Writer
	totalKnown bool
	totalBytes int64
	totalFiles int
	doneBytes  int64
	doneFiles  int
	spinIdx    int
	lastTick   time.Time
}

var spinner = []rune{'|', '/', '-', '\\'}

// NewProgress creates a tracker for totalFiles files amounting to
// totalBytes bytes. Pass totalBytes <= 0 when the size is unknown.
func NewProgress(totalBytes int64, totalFiles int) *Progress {
	return &Progress{
		w:          os.Stderr,
		totalKnown: totalBytes > 0,
		totalBytes: totalBytes,
		totalFiles: totalFiles,
	}
}

func (p *Progress) Add(delta int64) {
	if p == nil {
		return
	}
	p.doneBytes += delta
}

// Sub rewinds the byte count, used when a file upload restarts.
func (p *Progress) Sub(delta int64) {
	if p == nil {
		return
	}
	p.doneBytes -= delta
	if p.doneBytes < 0 {
		p.doneBytes = 0
	}
}

func (p *Progress) FileDone() {
	if p == nil {
		return
	}
	p.doneFiles++
}

func humanBytes(n int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(gb))
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(kb))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func (p *Progress) Render(force bool) {
	if p == nil {
		return
	}
	// throttle to ~10 updates per second to avoid spamming the terminal
	if !force && time.Since(p.lastTick) < 100*time.Millisecond {
		return
	}
	p.lastTick = time.Now()

	files := ""
	if p.totalFiles > 0 {
		files = fmt.Sprintf(" [%d/%d files]", p.doneFiles, p.totalFiles)
	}

	if p.totalKnown && p.totalBytes > 0 {
		pct := float64(p.doneBytes) / float64(p.totalBytes) * 100
		if p.doneBytes > p.totalBytes {
			p.doneBytes = p.totalBytes
			pct = 100
		}
		fmt.Fprintf(p.w, "\rProgress: %6.2f%% (%s / %s)%s   ",
			pct, humanBytes(p.doneBytes), humanBytes(p.totalBytes), files)
	} else {
		ch := spinner[p.spinIdx%len(spinner)]
		p.spinIdx++
		fmt.Fprintf(p.w, "\rProgress: [%c] %s transferred%s   ", ch, humanBytes(p.doneBytes), files)
	}
}

func (p *Progress) Done() {
	if p == nil {
		return
	}
	p.Render(true)
	fmt.Fprintln(p.w)
}
