// Package turns reassembles the stream of decoded agent messages into
// UI-addressable conversational turns. A turn is a maximal run of
// consecutive model fragments between two boundary signals; fragments
// belonging to the same turn share one identifier so a UI can append
// in place instead of rendering each fragment separately.
package turns

import (
	"strings"

	"github.com/google/uuid"

	"github.com/room4-2/converse-client/messages"
)

// Reassembler merges partial messages into turns. It is a pure state
// machine: it owns the open-turn identifier and nothing else, and it is
// not safe for concurrent use — the session loop serializes all calls.
type Reassembler struct {
	// Callbacks for addressable turn signals
	OnNewTurn     func(id, role, text string)
	OnAppend      func(id, text string)
	OnAudioMarker func(id string)
	OnBoundary    func()

	openID   string
	openText strings.Builder
	hasAudio bool
}

// Feed consumes one decoded message and fires the matching signal.
func (r *Reassembler) Feed(msg messages.Message) {
	switch m := msg.(type) {
	case messages.TurnComplete:
		// Idempotent: a second consecutive completion is a no-op.
		if r.openID == "" {
			return
		}
		r.clear()
		if r.OnBoundary != nil {
			r.OnBoundary()
		}

	case messages.ModelText:
		if r.openID != "" {
			r.openText.WriteString(m.Text)
			if r.OnAppend != nil {
				r.OnAppend(r.openID, m.Text)
			}
			return
		}
		id := uuid.New().String()
		r.openID = id
		r.openText.WriteString(m.Text)
		if r.OnNewTurn != nil {
			r.OnNewTurn(id, messages.RoleModel, m.Text)
		}

	case messages.UserText:
		// A user message never extends an open model turn; it is an
		// independent, immediately finalized turn and implicitly starts
		// a new exchange.
		r.clear()
		if r.OnNewTurn != nil {
			r.OnNewTurn(uuid.New().String(), messages.RoleUser, m.Text)
		}

	case messages.ModelAudio:
		// Audio only marks an open turn. With no turn open there is
		// nothing to address; playback happens upstream regardless.
		if r.openID == "" {
			return
		}
		r.hasAudio = true
		if r.OnAudioMarker != nil {
			r.OnAudioMarker(r.openID)
		}
	}
}

// Open reports the currently open turn, if any.
func (r *Reassembler) Open() (id, text string, hasAudio, ok bool) {
	if r.openID == "" {
		return "", "", false, false
	}
	return r.openID, r.openText.String(), r.hasAudio, true
}

// Reset discards any open turn without signaling. Used on disconnect:
// a partially reassembled turn is dropped, never replayed.
func (r *Reassembler) Reset() {
	r.clear()
}

func (r *Reassembler) clear() {
	r.openID = ""
	r.openText.Reset()
	r.hasAudio = false
}
