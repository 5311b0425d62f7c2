package report

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"
)

const (
	fontName = "Calibri"
	fontSize = 11
)

var (
	reHeading = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	reBold    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBullet  = regexp.MustCompile(`^[\-\*•]\s+(.+)$`)
)

type DOCX struct{}

func (DOCX) Format() string { return "docx" }

func (DOCX) Export(path string, doc Document) error {
	d, err := godocx.NewDocument()
	if err != nil {
		return err
	}

	title := doc.OriginalName
	if title == "" {
		title = doc.JobID
	}
	addStyledRun(d.AddParagraph(""), "Meeting notes: "+title, true, 16)
	addStyledRun(d.AddParagraph(""), fmt.Sprintf("Duration %s", formatDuration(doc.DurationSec)), false, 10)

	addStyledRun(d.AddParagraph(""), "Summary", true, 14)
	for _, line := range strings.Split(doc.Summary, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == "---" {
			continue
		}
		if m := reHeading.FindStringSubmatch(trimmed); m != nil {
			addStyledRun(d.AddParagraph(""), m[2], true, 12)
			continue
		}
		if m := reBullet.FindStringSubmatch(trimmed); m != nil {
			addRichText(d.AddParagraph(""), "• "+m[1])
			continue
		}
		addRichText(d.AddParagraph(""), trimmed)
	}

	if len(doc.ActionItems) > 0 {
		addStyledRun(d.AddParagraph(""), "Action Items", true, 14)
		for i, item := range doc.ActionItems {
			addRichText(d.AddParagraph(""), fmt.Sprintf("%d. %s", i+1, item))
		}
	}

	addStyledRun(d.AddParagraph(""), "Transcript", true, 14)
	d.AddParagraph("").AddText(strings.TrimSpace(doc.Transcript)).Font(fontName).Size(fontSize)

	if err := d.SaveTo(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func addStyledRun(p *docx.Paragraph, text string, bold bool, size uint64) {
	run := p.AddText(cleanInline(text)).Font(fontName).Size(size)
	if bold {
		run.Bold(true)
	}
}

func addRichText(p *docx.Paragraph, text string) {
	parts := reBold.Split(text, -1)
	matches := reBold.FindAllStringSubmatch(text, -1)
	for i, part := range parts {
		if part != "" {
			p.AddText(cleanInline(part)).Font(fontName).Size(fontSize)
		}
		if i < len(matches) {
			p.AddText(cleanInline(matches[i][1])).Font(fontName).Size(fontSize).Bold(true)
		}
	}
}

func cleanInline(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return strings.ReplaceAll(s, "`", "")
}
