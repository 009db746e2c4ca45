package httpapi

import "net/http"

// handleChat upgrades the connection and hands it to the chat broker, which
// owns the framed turn protocol from there on.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}
	conversationID := r.PathValue("conversationID")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.broker.Serve(r.Context(), conn, owner, conversationID)
}
