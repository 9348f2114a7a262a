package mcp

import (
	"html/template"
	"net/http"
)

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>ragtrack MCP Server</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .card { max-width: 640px; width: 90%; background: #1e293b; border-radius: 12px; padding: 2.5rem; }
  h1 { font-size: 1.75rem; margin-bottom: 0.5rem; color: #f8fafc; }
  .subtitle { color: #94a3b8; margin-bottom: 1.75rem; }
  .section { margin-bottom: 1.5rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin-bottom: 0.5rem; }
  a { color: #38bdf8; text-decoration: none; }
  pre { background: #0f172a; border: 1px solid #334155; border-radius: 8px; padding: 1rem; overflow-x: auto; font-size: 0.85rem; }
  code, .endpoint { font-family: "SF Mono", "Fira Code", Menlo, monospace; }
  .endpoint { color: #a5b4fc; }
  li { margin-left: 1.25rem; line-height: 1.6; }
</style>
</head>
<body>
<div class="card">
  <h1>ragtrack</h1>
  <p class="subtitle">Ask grounded questions about {{.Sources}} ingested job posting{{if ne .Sources 1}}s{{end}} over the Model Context Protocol.</p>

  <div class="section">
    <div class="section-title">Connect</div>
    <pre><code>claude mcp add ragtrack --transport http {{.BaseURL}}/mcp</code></pre>
  </div>

  <div class="section">
    <div class="section-title">Tools</div>
    <ul>
      <li><code>ask</code> answer a question from posting text</li>
      <li><code>search_chunks</code> raw similarity search</li>
      <li><code>list_sources</code> ingested URLs and their numbers</li>
      <li><code>get_index_status</code> counts and mirror state</li>
    </ul>
  </div>

  <div class="section">
    <div class="section-title">Endpoints</div>
    <p><a href="/mcp" class="endpoint">/mcp</a> MCP Streamable HTTP</p>
    <p><a href="/health" class="endpoint">/health</a> Health check</p>
  </div>
</div>
</body>
</html>`))

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler(store SourceCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		landingTemplate.Execute(w, struct {
			Sources int
			BaseURL string
		}{
			Sources: store.Len(),
			BaseURL: scheme + "://" + r.Host,
		})
	}
}
