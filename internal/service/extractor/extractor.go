// Package extractor turns a rendered ticket page into per-ticket status text.
package extractor

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/andres10976/ticketwatch/internal/model"
	"github.com/andres10976/ticketwatch/internal/service/matcher"
)

// Class names used by the ticket page.
const (
	SectionClass = "block-ticket-article"
	TicketClass  = "block-ticket"
	TitleClass   = "block-ticket__title"
	StatusClass  = "ticket-status"
)

// Snapshot maps a ticket key to its cleaned status text for one cycle.
type Snapshot map[string]string

// Result is the outcome of one extraction pass.
type Result struct {
	Snapshot Snapshot
	Sections int // sections on the page
	Matched  int // sections that matched at least one target
	Skipped  int // malformed ticket blocks
}

// Key builds the ticket identity shared by the policy, the daily log and the
// history store.
func Key(targetName, title string) string {
	return targetName + " [" + title + "]"
}

// Clean trims s and collapses every run of whitespace into a single space.
// Unicode spaces (including U+3000) count as whitespace.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CleanStatus is Clean for status text, except that a whitespace run holding
// a line break between two Japanese characters is dropped, the way a browser
// renders a wrapped status such as "残り\nわずか". Titles keep Clean so ticket
// keys stay stable.
func CleanStatus(s string) string {
	var b strings.Builder
	var prev rune
	space, lineBreak := false, false

	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			if r == '\n' || r == '\r' {
				lineBreak = true
			}
			continue
		}
		if space && b.Len() > 0 && !(lineBreak && isWide(prev) && isWide(r)) {
			b.WriteByte(' ')
		}
		space, lineBreak = false, false
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

func isWide(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		(r >= 0x3000 && r <= 0x30ff) ||
		(r >= 0xff00 && r <= 0xffef)
}

// Extract walks the ticket sections of doc and collects the status of every
// ticket block that belongs to a configured target and passes its keyword
// filter. A block without a title or status node is logged and skipped.
func Extract(doc *goquery.Document, targets []model.Target) Result {
	res := Result{Snapshot: Snapshot{}}

	sections := doc.Find("." + SectionClass)
	res.Sections = sections.Length()
	slog.Debug("ticket sections found", "count", res.Sections)

	sections.Each(func(_ int, section *goquery.Selection) {
		marker, _ := section.Attr("class")
		matched := matcher.SectionTargets(marker, targets)
		if len(matched) == 0 {
			return
		}
		res.Matched++

		blocks := section.Find("." + TicketClass)
		for _, target := range matched {
			blocks.Each(func(_ int, block *goquery.Selection) {
				title, status, ok := readBlock(block)
				if !ok {
					res.Skipped++
					slog.Warn("skipping malformed ticket block",
						"target", target.Name, "marker", marker)
					return
				}

				if !matcher.KeywordMatch(title, target.Keywords) {
					return
				}

				key := Key(target.Name, title)
				if prev, dup := res.Snapshot[key]; dup && prev != status {
					slog.Debug("duplicate ticket key in cycle, keeping last", "key", key)
				}
				res.Snapshot[key] = status
				slog.Info("found ticket", "key", key, "status", status)
			})
		}
	})

	return res
}

func readBlock(block *goquery.Selection) (title, status string, ok bool) {
	titleEl := block.Find("." + TitleClass).First()
	statusEl := block.Find("." + StatusClass).First()
	if titleEl.Length() == 0 || statusEl.Length() == 0 {
		return "", "", false
	}
	return Clean(titleEl.Text()), CleanStatus(statusEl.Text()), true
}
