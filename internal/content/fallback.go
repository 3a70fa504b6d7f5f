package content

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

const emailStyle = "font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;"

var fallbackTemplate = template.Must(template.New("fallback").Parse(`<div style="` + emailStyle + `">
  <h2 style="color: #4a5568;">{{.Greeting}}</h2>
  <p style="font-size: 16px; line-height: 1.6; color: #2d3748;">{{.Main}}</p>
  <p style="font-size: 16px; line-height: 1.6; color: #2d3748;">{{.Motivation}}</p>
  <p style="font-style: italic; color: #718096;">{{.SignOff}}<br>{{.Signature}}</p>
</div>`))

type fallbackData struct {
	Greeting   string
	Main       string
	Motivation string
	SignOff    string
	Signature  string
}

// Fallback builds a reminder from the static persona templates. It performs
// no I/O and always returns a non-empty subject and body.
func Fallback(snap Snapshot, signature string) Content {
	persona := PersonaFor(snap.Tone)

	name := strings.TrimSpace(snap.Name)
	if name == "" {
		name = "there"
	}
	if signature == "" {
		signature = "The MailGoal Team"
	}

	subject, main := fallbackSubjectAndMain(snap)

	data := fallbackData{
		Greeting:   fmt.Sprintf(persona.Greeting, name),
		Main:       main,
		Motivation: persona.Motivation,
		SignOff:    persona.SignOff,
		Signature:  signature,
	}

	var buf bytes.Buffer
	err := fallbackTemplate.Execute(&buf, data)
	if err != nil {
		// The template is static, so this only happens on a programming error.
		buf.Reset()
		buf.WriteString(template.HTMLEscapeString(main))
	}

	text := strings.Join([]string{data.Greeting, data.Main, data.Motivation, data.SignOff + "\n" + signature}, "\n\n")

	return Content{
		Subject: subject,
		HTML:    buf.String(),
		Text:    text,
	}
}

func fallbackSubjectAndMain(snap Snapshot) (string, string) {
	goal := strings.TrimSpace(snap.Goal)
	if goal == "" {
		goal = "your goal"
	}

	days := snap.DaysRemaining()
	switch {
	case days <= 0:
		return fmt.Sprintf("Today is the day: %s", goal),
			fmt.Sprintf("Today is the deadline for your goal: \"%s\". Have you accomplished what you set out to do?", goal)
	case days == 1:
		return fmt.Sprintf("Tomorrow is the deadline: %s", goal),
			fmt.Sprintf("Tomorrow is the deadline for your goal: \"%s\". This is your final push!", goal)
	default:
		return fmt.Sprintf("%d days left: %s", days, goal),
			fmt.Sprintf("You have %d days left to achieve your goal: \"%s\".", days, goal)
	}
}
