package httpapi

import (
	"net/http"

	"github.com/marketbeam/orchestrator/internal/credentials"
)

func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request, tenantID, _ string) {
	metas, err := s.registry.Broker(tenantID).List(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to list secrets")
		return
	}
	if metas == nil {
		metas = []credentials.SecretMetadata{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"secrets": metas})
}

// secretRequest is the payload for secret store, test, and rotate calls.
type secretRequest struct {
	Service string `json:"service"`
	KeyType string `json:"keyType"`
	Value   string `json:"value"`
}

func (req *secretRequest) validate(w http.ResponseWriter) bool {
	if req.Service == "" || req.KeyType == "" {
		writeError(w, http.StatusBadRequest, "service and keyType are required")
		return false
	}
	return true
}

func (s *Server) handleStoreSecret(w http.ResponseWriter, r *http.Request, tenantID, _ string) {
	var req secretRequest
	if !decodeJSON(w, r, &req) || !req.validate(w) {
		return
	}

	if fr := credentials.ValidateFormat(req.Service, req.KeyType, req.Value); !fr.Valid {
		writeError(w, http.StatusUnprocessableEntity, fr.Reason)
		return
	}

	if err := s.registry.Broker(tenantID).Store(r.Context(), req.Service, req.KeyType, req.Value); err != nil {
		writeError(w, http.StatusBadGateway, "failed to store secret")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request, tenantID, _ string) {
	service := r.PathValue("service")
	keyType := r.PathValue("keyType")
	if service == "" || keyType == "" {
		writeError(w, http.StatusBadRequest, "service and keyType are required")
		return
	}

	if err := s.registry.Broker(tenantID).Remove(r.Context(), service, keyType); err != nil {
		writeError(w, http.StatusBadGateway, "failed to delete secret")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleTestSecret(w http.ResponseWriter, r *http.Request, tenantID, _ string) {
	var req secretRequest
	if !decodeJSON(w, r, &req) || !req.validate(w) {
		return
	}

	result, err := s.registry.Broker(tenantID).TestKey(r.Context(), req.Service, req.KeyType, req.Value)
	if err != nil {
		writeError(w, http.StatusBadGateway, "key validation unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"validation": result})
}

func (s *Server) handleRotateSecret(w http.ResponseWriter, r *http.Request, tenantID, _ string) {
	var req secretRequest
	if !decodeJSON(w, r, &req) || !req.validate(w) {
		return
	}

	if err := s.registry.Broker(tenantID).Rotate(r.Context(), req.Service, req.KeyType, req.Value); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rotated"})
}

// strengthRequest is the payload for POST /api/v1/secrets/strength.
type strengthRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleSecretStrength(w http.ResponseWriter, r *http.Request) {
	var req strengthRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"score": credentials.Strength(req.Value)})
}
