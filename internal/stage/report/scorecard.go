package report

import (
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

var scorecardTmpl = template.Must(template.New("scorecard").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>AI Visibility Scorecard</title></head>
<body>
<h1>AI Visibility Scorecard</h1>
{{if .Score}}
<h2>Overall score: {{.Score.OverallScore}}/100</h2>
<p>{{.Score.Summary}}</p>
{{if .Score.Dimensions}}
<table border="1" cellpadding="4">
<tr><th>Dimension</th><th>Score</th></tr>
{{range $name, $val := .Score.Dimensions}}<tr><td>{{$name}}</td><td>{{$val}}</td></tr>
{{end}}
</table>
{{end}}
<p><small>Scored by {{.Score.Model}}</small></p>
{{else}}
<p>No score available.</p>
{{end}}
{{if .Schema}}
<h2>Structured data</h2>
<ul>
<li>Pages scanned: {{.Schema.PagesScanned}}</li>
<li>Pages with JSON-LD: {{.Schema.PagesWithJSONLD}}</li>
<li>OpenGraph pages: {{.Schema.OpenGraphPages}}</li>
<li>Meta description pages: {{.Schema.MetaDescriptionPages}}</li>
<li>Coverage score: {{.Schema.Score}}/100</li>
</ul>
{{end}}
{{if .Audit}}
<h2>Crawl</h2>
<p>{{.Audit.PagesCrawled}} pages crawled on {{.Audit.Domain}}, {{.Audit.TotalWordCount}} visible words.</p>
{{end}}
</body>
</html>
`))

// Scorecard writes scorecard.html, the human-readable score page.
type Scorecard struct{}

func (Scorecard) Name() string { return "report_scorecard" }

func (Scorecard) Generate(_ context.Context, dir string, results *analysis.ResultSet) analysis.StageResult {
	path := filepath.Join(dir, "scorecard.html")
	f, err := os.Create(path)
	if err != nil {
		return fail(fmt.Errorf("create scorecard: %w", err))
	}
	defer f.Close()
	if err := scorecardTmpl.Execute(f, results); err != nil {
		return fail(fmt.Errorf("render scorecard: %w", err))
	}
	return ok(path)
}
