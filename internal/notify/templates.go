package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type welcomeData struct {
	FirstName    string
	Email        string
	TempPassword string
	LoginURL     string
	CompanyName  string
}

type linksData struct {
	CandidateName string
	StageName     string
	CustomMessage string
	Documents     []linkItem
	CompanyName   string
}

type linkItem struct {
	Name        string
	Description string
	URL         string
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
