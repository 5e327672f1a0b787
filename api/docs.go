package api

import (
	"fmt"
	"net/http"
)

// handleOpenAPI describes the workflow API surface.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	spec := map[string]any{
		"openapi": "3.0.0",
		"info": map[string]any{
			"title":   "drama",
			"version": "2.0",
		},
		"paths": map[string]any{
			"/api/health": map[string]any{
				"get": map[string]any{
					"summary":   "Health check",
					"responses": map[string]any{"200": map[string]any{"description": "OK"}},
				},
			},
			"/api/v2/workflow/run": map[string]any{
				"post": map[string]any{
					"summary":   "Execute workflow",
					"responses": map[string]any{"200": map[string]any{"description": "Persisted workflow"}},
				},
			},
			"/api/v2/workflow/status": map[string]any{
				"get": map[string]any{
					"summary":   "Get workflow execution status",
					"responses": map[string]any{"200": map[string]any{"description": "Workflow with tasks"}},
				},
			},
			"/api/v2/workflow/revoke": map[string]any{
				"post": map[string]any{
					"summary":   "Cancel workflow execution",
					"responses": map[string]any{"200": map[string]any{"description": "Revoked workflow"}},
				},
			},
			"/api/v2/workflow/topic": map[string]any{
				"post": map[string]any{
					"summary":   "Send a message through a workflow topic",
					"responses": map[string]any{"200": map[string]any{"description": "Message published"}},
				},
			},
		},
	}

	writeJSON(w, http.StatusOK, spec)
}

// handleDocs serves an interactive API browser over the OpenAPI document.
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	openapiURL := "/api/openapi.json"
	if s.cfg.APIKey != "" {
		openapiURL = fmt.Sprintf("%s?%s=%s", openapiURL, s.cfg.APIKeyName, s.cfg.APIKey)
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<title>Documentation</title>
	<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
	<div id="swagger-ui"></div>
	<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
	<script>
		SwaggerUIBundle({url: %q, dom_id: "#swagger-ui"});
	</script>
</body>
</html>`, openapiURL)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}
