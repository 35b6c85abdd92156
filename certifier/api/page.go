// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/luxfi/certify"
	"github.com/luxfi/log"
)

const (
	certificateField = "certificate"
	actionField      = "action"
	actionIssue      = "issue"
	actionVerify     = "verify"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Certificate Verification</title>
<style>
body { font-family: sans-serif; max-width: 40rem; margin: 2rem auto; }
input[type=text] { width: 100%; padding: 0.5rem; }
button { margin: 0.5rem 0.5rem 0.5rem 0; padding: 0.5rem 1rem; }
.status { padding: 0.75rem; border-radius: 4px; }
.status.success { background: #e8f5e9; color: #2e7d32; }
.status.failure { background: #ffebee; color: #c62828; }
.status.warning { background: #fff3e0; color: #e65100; }
footer { margin-top: 2rem; color: #757575; }
</style>
</head>
<body>
<h1>📜 Certificate Verification</h1>
{{- if .InitError }}
<p class="status warning">{{ .InitError }}</p>
{{- end }}
<p>Connected Wallet: {{ if .Account }}{{ .Account }}{{ else }}Not connected{{ end }}</p>
<form method="post" action="/">
<label for="certificate">Certificate Data</label>
<input type="text" id="certificate" name="certificate" value="{{ .Certificate }}">
<button type="submit" name="action" value="issue">Issue Certificate</button>
<button type="submit" name="action" value="verify">Verify Certificate</button>
</form>
{{- with .Outcome }}
<p class="status {{ .Category }}">{{ .Message }}</p>
{{- end }}
<footer>Powered by Ethereum Blockchain</footer>
</body>
</html>
`))

type pageView struct {
	Account     string
	InitError   string
	Certificate string
	Outcome     *certify.Outcome
}

func (h *handlers) view(certificate string) pageView {
	v := pageView{
		Certificate: certificate,
		Outcome:     h.controller.Outcome(),
	}
	if account, ok := h.controller.Account(); ok {
		v.Account = account.Hex()
	}
	if err := h.controller.InitError(); err != nil {
		v.InitError = initErrorMessage(err)
	}
	return v
}

func (h *handlers) handlePage(w http.ResponseWriter, r *http.Request) {
	h.metrics.APIRequestCount.WithLabelValues(r.URL.Path).Inc()
	h.renderPage(w, h.view(""))
}

// handlePageAction runs the operation chosen on the form and renders the
// page again with the input preserved.
func (h *handlers) handlePageAction(w http.ResponseWriter, r *http.Request) {
	h.metrics.APIRequestCount.WithLabelValues(r.URL.Path).Inc()

	if err := r.ParseForm(); err != nil {
		h.logger.Warn("Could not parse form", log.Err(err))
		http.Error(w, "could not parse form", http.StatusBadRequest)
		return
	}
	certificate := r.PostForm.Get(certificateField)
	switch r.PostForm.Get(actionField) {
	case actionIssue:
		h.run(r.Context(), certify.OperationIssue, certificate)
	case actionVerify:
		h.run(r.Context(), certify.OperationVerify, certificate)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	h.renderPage(w, h.view(certificate))
}

func (h *handlers) renderPage(w http.ResponseWriter, v pageView) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, v); err != nil {
		h.logger.Error("Failed to render page", log.Err(err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("Error writing page", log.Err(err))
	}
}
