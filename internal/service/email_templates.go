package service

import (
	"fmt"
	"html"

	"github.com/mailgoal/mailgoal/internal/content"
)

const completionFooterStyle = "margin-top: 24px; padding-top: 12px; border-top: 1px solid #eee; font-size: 13px; color: #666;"

// withCompletionLink appends the "I achieved it" footer to a reminder.
func withCompletionLink(c content.Content, completeURL string) content.Content {
	if completeURL == "" {
		return c
	}

	c.HTML += fmt.Sprintf(`<div style="%s"><p>Reached your goal? <a href="%s">Mark it as achieved</a> and we will stop the reminders.</p></div>`,
		completionFooterStyle, html.EscapeString(completeURL))

	if c.Text != "" {
		c.Text += "\n\n"
	}
	c.Text += fmt.Sprintf("Reached your goal? Mark it as achieved and we will stop the reminders:\n%s", completeURL)

	return c
}
