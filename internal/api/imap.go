package api

import (
	"net/http"

	"github.com/dacrisa/comandas-core/internal/imapworker"
)

const imapForcePollScope = "imap-force-poll"

// handleImapStatus implements GET /api/imap/status (§6): worker state plus
// the persisted cursor, for the ops dashboard.
func (s *Server) handleImapStatus(w http.ResponseWriter, r *http.Request) {
	status := s.imapWorker.Status()

	resp := map[string]interface{}{
		"running":      true,
		"connected":    status.State == imapworker.StateConnected || status.State == imapworker.StatePolling,
		"state":        status.State,
		"last_error":   status.LastError,
		"last_poll_at": status.LastPollAt,
	}

	cursor, err := s.queries().GetImapCursor(r.Context())
	if err == nil && cursor != nil {
		cursorResp := map[string]interface{}{"last_uid": cursor.LastUID}
		if cursor.UIDValidity.Valid {
			cursorResp["uidvalidity"] = cursor.UIDValidity.Int64
		} else {
			cursorResp["uidvalidity"] = nil
		}
		resp["cursor"] = cursorResp
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleImapForcePoll implements POST /api/imap/force-poll (§2.O): rate
// limited so an impatient client can't drive the mailbox harder than the
// configured poll interval.
func (s *Server) handleImapForcePoll(w http.ResponseWriter, r *http.Request) {
	if !s.forcePoll.Allow(imapForcePollScope) {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "force-poll is rate limited, try again shortly")
		return
	}
	s.imapWorker.PollNow()
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}
