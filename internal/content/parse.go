package content

import (
	"errors"
	"regexp"
	"strings"
)

var ErrUnparseable = errors.New("generated text has no usable subject or body")

const maxSubjectLen = 120

var subjectLine = regexp.MustCompile(`(?i)^[\s*_#>]*subject[\s*_]*:\s*(.+)$`)

type frontmatterMeta struct {
	Subject string `yaml:"subject" toml:"subject"`
}

// parse extracts a subject and HTML body from backend output. The subject is
// taken from front matter, then from a "Subject:" line, then from a short
// first line.
func (g *Generator) parse(raw string) (Content, error) {
	src := stripCodeFence(strings.TrimSpace(raw))
	if src == "" {
		return Content{}, ErrUnparseable
	}

	var meta frontmatterMeta
	html, found, err := g.md.ParseWithFrontmatter([]byte(src), &meta)
	if err == nil && found && cleanSubject(meta.Subject) != "" {
		body := stripFrontmatter(src)
		if strings.TrimSpace(body) == "" || strings.TrimSpace(string(html)) == "" {
			return Content{}, ErrUnparseable
		}
		return Content{
			Subject:   cleanSubject(meta.Subject),
			HTML:      wrapHTML(string(html)),
			Text:      strings.TrimSpace(body),
			Generated: true,
		}, nil
	}

	subject, body := splitSubject(stripFrontmatter(src))
	if subject == "" || strings.TrimSpace(body) == "" {
		return Content{}, ErrUnparseable
	}

	html, err = g.md.Parse([]byte(body))
	if err != nil {
		return Content{}, errors.Join(ErrUnparseable, err)
	}

	return Content{
		Subject:   subject,
		HTML:      wrapHTML(string(html)),
		Text:      strings.TrimSpace(body),
		Generated: true,
	}, nil
}

func splitSubject(src string) (string, string) {
	lines := strings.Split(src, "\n")

	for i, line := range lines {
		m := subjectLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		subject := cleanSubject(m[1])
		if subject == "" {
			break
		}
		rest := append(append([]string{}, lines[:i]...), lines[i+1:]...)
		return subject, strings.Join(rest, "\n")
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		subject := cleanSubject(line)
		if subject == "" || len(subject) > maxSubjectLen {
			return "", ""
		}
		return subject, strings.Join(lines[i+1:], "\n")
	}

	return "", ""
}

func cleanSubject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "# ")
	return strings.Trim(s, "*_\"'` ")
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	_, rest, ok := strings.Cut(s, "\n")
	if !ok {
		return ""
	}
	rest = strings.TrimSpace(rest)
	rest = strings.TrimSuffix(rest, "```")
	return strings.TrimSpace(rest)
}

func stripFrontmatter(s string) string {
	for _, delim := range []string{"---", "+++"} {
		if !strings.HasPrefix(s, delim+"\n") {
			continue
		}
		lines := strings.Split(s, "\n")
		for i := 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == delim {
				return strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
			}
		}
	}
	return s
}

func wrapHTML(body string) string {
	return `<div style="` + emailStyle + `">` + "\n" + strings.TrimSpace(body) + "\n</div>"
}
