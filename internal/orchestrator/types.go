package orchestrator

import (
	"fmt"
	"sort"
	"strings"
)

// PageResult is the output for one page. CorrectedText is nil unless the
// run is two-pass.
type PageResult struct {
	PageIndex     int
	Label         string
	RawText       string
	CorrectedText *string
}

// Corrected returns the corrected text, or the raw text when there is none.
func (r PageResult) Corrected() string {
	if r.CorrectedText == nil {
		return r.RawText
	}
	return *r.CorrectedText
}

// SortResults orders results by ascending page index.
func SortResults(rs []PageResult) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].PageIndex < rs[j].PageIndex })
}

// BatchWindow is an inclusive 1-based page range loaded into memory at once.
type BatchWindow struct {
	Start int
	End   int
}

func (w BatchWindow) Size() int { return w.End - w.Start + 1 }

func (w BatchWindow) String() string { return fmt.Sprintf("%d-%d", w.Start, w.End) }

// BatchWindows partitions [1,total] into consecutive windows of at most size
// pages.
func BatchWindows(total, size int) []BatchWindow {
	if total < 1 || size < 1 {
		return nil
	}
	out := make([]BatchWindow, 0, (total+size-1)/size)
	for start := 1; start <= total; start += size {
		end := start + size - 1
		if end > total {
			end = total
		}
		out = append(out, BatchWindow{Start: start, End: end})
	}
	return out
}

// PageLabel names a page relative to the first numbered page. Pages before
// startPage are front matter and keep their absolute index.
func PageLabel(pageIndex, startPage int) string {
	if n := pageIndex - startPage + 1; n >= 1 {
		return fmt.Sprintf("Page %d", n)
	}
	return fmt.Sprintf("[Front Matter p.%d]", pageIndex)
}

var blockRule = strings.Repeat("=", 20)

// FormatBlock renders one labeled page section.
func FormatBlock(label, text string) string {
	return "\n" + blockRule + " " + label + " " + blockRule + "\n" + text
}

// Document accumulates page results in ascending page order.
type Document struct {
	TwoPass bool
	Pages   []PageResult
}

// Append adds a batch of already ordered results.
func (d *Document) Append(rs ...PageResult) { d.Pages = append(d.Pages, rs...) }

// Raw joins the raw page blocks.
func (d *Document) Raw() string {
	blocks := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		blocks[i] = FormatBlock(p.Label, p.RawText)
	}
	return strings.Join(blocks, "\n\n")
}

// Corrected joins the corrected page blocks. Empty for one-pass runs.
func (d *Document) Corrected() string {
	if !d.TwoPass {
		return ""
	}
	blocks := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		blocks[i] = FormatBlock(p.Label, p.Corrected())
	}
	return strings.Join(blocks, "\n\n")
}

// Preview returns at most n characters of s.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
