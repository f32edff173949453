package httpapi

import (
	"html/template"
	"net/http"
	"strings"
	"unicode"
)

var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>App Status</title>
</head>
<body>
<h1>Talion is Running</h1>
<p>Welcome to the {{.Title}} API!</p>
<p>Model: <code>{{.Model}}</code> ({{.State}})</p>
<p>Send a POST request to <code>/generate/</code> with <code>prompt</code> and <code>max_length</code> to generate text.</p>
</body>
</html>
`))

type pageData struct {
	Title string
	Model string
	State string
}

// apiTitle names the API after the model: the last path segment of its id,
// without a .gguf extension or a trailing -vN version
// ("Equall/Saul-7B-Instruct-v1" -> "Saul-7B-Instruct").
func apiTitle(modelID string) string {
	name := modelID[strings.LastIndexAny(modelID, `/\`)+1:]
	if strings.HasSuffix(strings.ToLower(name), ".gguf") {
		name = name[:len(name)-len(".gguf")]
	}
	if i := strings.LastIndex(name, "-v"); i > 0 && i+2 < len(name) {
		if strings.IndexFunc(name[i+2:], func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
			name = name[:i]
		}
	}
	if name == "" {
		return "Talion"
	}
	return name
}

// indexHandler renders the status page. Visiting it starts a background
// model load when nothing has been loaded yet.
//
// @Summary      Status page
// @Description  Static HTML page. Triggers a background model load in lazy mode.
// @Tags         status
// @Produce      html
// @Success      200  {string}  string  "HTML page"
// @Router       / [get]
func indexHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.Warm()
		st := svc.Status()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := statusPage.Execute(w, pageData{Title: apiTitle(st.Model.ID), Model: st.Model.ID, State: st.State}); err != nil {
			zlog.Error().Err(err).Msg("render status page")
		}
	}
}
