package httpapi

import (
	"net/http"

	"github.com/marketbeam/orchestrator/internal/capability"
)

// handleListCapabilities serves the catalog with optional filters:
// ?category=, ?q= (free-text search), ?active=true.
func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	caps := s.registry.Capabilities()

	var list []capability.Summary
	switch {
	case r.URL.Query().Get("q") != "":
		list = caps.Search(r.URL.Query().Get("q"))
	case r.URL.Query().Get("category") != "":
		list = caps.ListByCategory(r.URL.Query().Get("category"))
	case r.URL.Query().Get("active") == "true":
		list = caps.ListActive()
	default:
		list = caps.List()
	}
	if list == nil {
		list = []capability.Summary{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"capabilities": list,
		"categories":   caps.Categories(),
	})
}

func (s *Server) handleGetCapability(w http.ResponseWriter, r *http.Request) {
	c, ok := s.registry.Capabilities().Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "capability not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}
