package mcpserver

import (
	"strings"

	"github.com/starford/parkwatch/internal/models"
)

// GuideURI is the resource URI of the reporting guide.
const GuideURI = "parkwatch://categories"

// ReportingGuide describes how an issue report should be shaped so that
// LLM consumers file useful, anonymous reports.
var ReportingGuide = `# Parkwatch Reporting Guide

Issues are anonymous. Never put names, phone numbers or e-mail addresses in
a report.

## Categories

` + categoryList() + `
Any other short label is accepted, but prefer one of the above.

## Fields

- **category** (required): one of the categories above.
- **description** (required): what is wrong, in one or two sentences.
- **location** (optional): where in the park, e.g. "north gate" or "playground".

The description and location are stored encoded. Only the category, the
timestamp, the vote count and the moderation status are visible to everyone.

## Status

Every new issue starts as ` + "`pending`" + ` with zero votes. Moderators move it to
` + "`approved`" + ` or ` + "`rejected`" + `. Voting does not change the status.
`

func categoryList() string {
	var b strings.Builder
	for _, c := range models.Categories {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	return b.String()
}
