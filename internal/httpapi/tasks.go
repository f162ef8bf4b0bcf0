package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketbeam/orchestrator/internal/orchestration"
	"github.com/marketbeam/orchestrator/internal/session"
)

// executeTaskRequest is the payload for POST /api/v1/tasks.
type executeTaskRequest struct {
	TaskID         string   `json:"task_id,omitempty"`
	Mode           string   `json:"mode"`
	CapabilityIDs  []string `json:"capability_ids"`
	Input          string   `json:"input"`
	ConversationID string   `json:"conversation_id,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
	Priority       int      `json:"priority,omitempty"`
}

func (s *Server) handleExecuteTask(w http.ResponseWriter, r *http.Request, tenantID, userID string) {
	var req executeTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.TaskID == "" {
		req.TaskID = uuid.New().String()
	}
	task := &orchestration.Task{
		ID:            req.TaskID,
		Mode:          orchestration.ExecutionMode(req.Mode),
		CapabilityIDs: req.CapabilityIDs,
		Input:         req.Input,
		Timeout:       time.Duration(req.TimeoutSeconds) * time.Second,
		Priority:      req.Priority,
		Context: orchestration.Context{
			TenantID:       tenantID,
			UserID:         userID,
			ConversationID: req.ConversationID,
		},
	}

	if req.ConversationID != "" {
		if sessions := s.registry.Sessions(); sessions != nil {
			if conv, err := sessions.Get(r.Context(), tenantID, req.ConversationID); err == nil {
				task.Context.History = conv.History
			}
		}
	}

	result := s.registry.Orchestrator(tenantID, userID).ExecuteTask(r.Context(), task)
	if s.audit != nil {
		s.audit.RecordTask(task, result)
	}
	writeJSON(w, http.StatusOK, result)
}

// messageRequest is the payload for POST /api/v1/messages: a raw user
// message that is classified, executed, and appended to its conversation.
type messageRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request, tenantID, userID string) {
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	sessions := s.registry.Sessions()
	if req.ConversationID == "" && sessions != nil {
		conv, err := sessions.Create(r.Context(), tenantID, userID, nil)
		if err == nil {
			req.ConversationID = conv.ID
		} else {
			s.logger.Warn("Failed to create conversation", zap.Error(err))
		}
	}

	o := s.registry.Orchestrator(tenantID, userID)
	task := o.BuildTaskFromMessage(r.Context(), req.Text, req.ConversationID)
	result := o.ExecuteTask(r.Context(), task)

	if sessions != nil && req.ConversationID != "" {
		_ = sessions.AddMessage(r.Context(), tenantID, req.ConversationID, session.Message{
			Role:    "user",
			Content: req.Text,
		})
		if result.Success {
			capabilityID := ""
			if len(task.CapabilityIDs) > 0 {
				capabilityID = task.CapabilityIDs[0]
			}
			_ = sessions.AddMessage(r.Context(), tenantID, req.ConversationID, session.Message{
				Role:         "assistant",
				Content:      result.FinalResponse,
				CapabilityID: capabilityID,
				TokensUsed:   result.TotalTokens,
				CostUSD:      result.TotalCostUSD,
			})
		}
	}

	if s.audit != nil {
		s.audit.RecordTask(task, result)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": req.ConversationID,
		"task":            task,
		"result":          result,
	})
}

// intentRequest is the payload for POST /api/v1/intent.
type intentRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	writeJSON(w, http.StatusOK, orchestration.AnalyzeIntent(req.Text))
}
