package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianlabs/toolbridge/internal/apierr"
	"github.com/meridianlabs/toolbridge/internal/auth"
	"github.com/meridianlabs/toolbridge/internal/openapi"
)

// handleToolCall implements POST /api/tools/{name}, spec §4.6.
func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, ok := auth.TenantFromContext(r.Context())
	if !ok {
		s.writeError(w, apierr.ErrTenantUnknownAPI)
		return
	}

	args, err := mergeArgs(r)
	if err != nil {
		s.writeError(w, apierr.Wrap(apierr.ErrInvalidPayload, "invalid json body: %v", err))
		return
	}

	result, err := s.invoker.Invoke(r.Context(), t, name, args, 0)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": json.RawMessage(result)})
}

// mergeArgs builds the tool's argument object: query parameters first, then
// body object keys overwriting on conflict, per spec §4.6.
func mergeArgs(r *http.Request) (map[string]interface{}, error) {
	args := make(map[string]interface{})
	for k, vals := range r.URL.Query() {
		if len(vals) > 0 {
			args[k] = vals[0]
		}
	}

	if r.Body == nil {
		return args, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return args, nil
	}

	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	for k, v := range body {
		args[k] = v
	}
	return args, nil
}

// handleDescriptionJSON implements GET /openapi/{hash}/json (unauthenticated).
func (s *Server) handleDescriptionJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := s.resolveDescription(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	data, err := doc.JSON()
	if err != nil {
		s.writeError(w, apierr.ErrInternal)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// handleDescriptionYAML implements GET /openapi/{hash}/yaml (unauthenticated).
func (s *Server) handleDescriptionYAML(w http.ResponseWriter, r *http.Request) {
	doc, err := s.resolveDescription(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	data, err := doc.YAML()
	if err != nil {
		s.writeError(w, apierr.ErrInternal)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(data)
}

func (s *Server) resolveDescription(r *http.Request) (*openapi.Document, error) {
	hash := chi.URLParam(r, "hash")
	t, ok := s.authr.TenantFromHash(hash)
	if !ok {
		return nil, apierr.ErrTenantUnknownDesc
	}
	return openapi.Generate(s.baseTitle, t, s.workers.Snapshot(), s.publicURL), nil
}

const loginPage = `<!doctype html>
<html><head><title>Admin login</title></head>
<body>
<form method="POST" action="/login">
<label>Admin token <input type="password" name="adminToken" autofocus></label>
<button type="submit">Log in</button>
</form>
</body></html>`

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, loginPage)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d := s.facet.Snapshot()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><html><head><title>%s admin</title></head><body>", s.baseTitle)
	fmt.Fprintf(w, "<h1>%s</h1>", s.baseTitle)
	fmt.Fprintf(w, "<p>Tenants: %d, Connected workers: %d, Distinct tools: %d, Uptime: %s</p>",
		d.TenantCount, d.ConnectedWorkerCount, d.DistinctToolCount, d.Uptime.Round(1_000_000_000))
	for _, card := range d.Tenants {
		fmt.Fprintf(w, "<h2>%s</h2><ul>", card.Name)
		fmt.Fprintf(w, "<li><a href=\"%s\">JSON</a> / <a href=\"%s\">YAML</a></li>", card.DescriptionJSON, card.DescriptionYAML)
		for _, wk := range card.Workers {
			state := "disconnected"
			if wk.Connected {
				state = "connected"
			}
			fmt.Fprintf(w, "<li>%s... (%s, %d tools)</li>", wk.IDPrefix, state, wk.ToolCount)
		}
		fmt.Fprintf(w, "</ul>")
	}
	fmt.Fprintf(w, "</body></html>")
}

// statsResponse is the JSON shape of GET /api/admin/stats.
type statsResponse struct {
	TenantCount          int   `json:"tenant_count"`
	ConnectedWorkerCount int   `json:"connected_worker_count"`
	DistinctToolCount    int   `json:"distinct_tool_count"`
	UptimeSeconds        int64 `json:"uptime_seconds"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	d := s.facet.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statsResponse{
		TenantCount:          d.TenantCount,
		ConnectedWorkerCount: d.ConnectedWorkerCount,
		DistinctToolCount:    d.DistinctToolCount,
		UptimeSeconds:        int64(d.Uptime.Seconds()),
	})
}

// writeAuthError adapts auth.RequireTenant's failure callback to writeError.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, err)
}

// writeError translates an apierr.Error (or any error) into the HTTP status
// and body matrix of spec §7. ClientCancelled gets no body at all.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		ae = apierr.ErrInternal
	}

	if ae.Code == apierr.ErrClientCancelled.Code {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": ae.Message,
		"code":  ae.Code,
	})
}
