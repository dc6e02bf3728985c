package api

import (
	"net/http"
	"strconv"

	"github.com/apocaliss92/scrypted-neolink/internal/audit"
	"github.com/apocaliss92/scrypted-neolink/internal/auth"
)

// record appends an audit entry for a successful mutation. Failures are
// logged only.
func (s *Server) record(r *http.Request, action, entityType, entityID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := &audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
	if claims, ok := r.Context().Value(ctxKeyClaims).(*auth.CustomClaims); ok {
		entry.Actor = claims.Subject
	}
	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Warn("failed to write audit entry", "action", action, "entity_id", entityID, "error", err)
	}
}

// handleListAudit pages through the audit trail.
//
// Query parameters: action, entity_type, entity_id, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, &audit.ListResult{Entries: []audit.Entry{}})
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeBadRequest(w, name+" must be a non-negative integer")
				return
			}
			*dst = n
		}
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
