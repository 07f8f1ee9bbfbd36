package messages

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Wire mime types
const (
	MimeText     = "text/plain"
	MimeAudioPCM = "audio/pcm"
)

// Roles carried on the wire
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ErrMalformed is returned when a wire string cannot be decoded into a
// valid message. The caller decides the propagation policy; Decode never
// partially processes anything.
var ErrMalformed = errors.New("malformed envelope")

// envelope is the raw JSON object exchanged with the agent gateway.
// Role is optional and defaults to "model" on inbound messages. A
// turn_complete envelope carries no content.
type envelope struct {
	MimeType     string `json:"mime_type,omitempty"`
	Data         string `json:"data,omitempty"`
	Role         string `json:"role,omitempty"`
	TurnComplete bool   `json:"turn_complete,omitempty"`
}

// Message is the decoded form of a wire envelope: one explicit case per
// valid field combination instead of a loosely-typed struct.
type Message interface {
	isMessage()
}

// UserText is a text message authored by the human user.
type UserText struct {
	Text string
}

// ModelText is one text fragment of a model response.
type ModelText struct {
	Text string
}

// UserAudio is one captured microphone frame going out to the agent.
type UserAudio struct {
	PCM []byte
}

// ModelAudio is one synthesized audio frame coming back from the agent.
type ModelAudio struct {
	PCM []byte
}

// TurnComplete closes the currently open model turn. It never carries
// content.
type TurnComplete struct{}

func (UserText) isMessage()     {}
func (ModelText) isMessage()    {}
func (UserAudio) isMessage()    {}
func (ModelAudio) isMessage()   {}
func (TurnComplete) isMessage() {}

// Encode serializes a message to its wire form. Audio content is base64
// encoded so raw PCM survives the text transport losslessly.
func Encode(msg Message) ([]byte, error) {
	var env envelope

	switch m := msg.(type) {
	case UserText:
		env = envelope{MimeType: MimeText, Data: m.Text, Role: RoleUser}
	case ModelText:
		env = envelope{MimeType: MimeText, Data: m.Text, Role: RoleModel}
	case UserAudio:
		env = envelope{MimeType: MimeAudioPCM, Data: base64.StdEncoding.EncodeToString(m.PCM), Role: RoleUser}
	case ModelAudio:
		env = envelope{MimeType: MimeAudioPCM, Data: base64.StdEncoding.EncodeToString(m.PCM), Role: RoleModel}
	case TurnComplete:
		env = envelope{TurnComplete: true}
	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}

	data, err := sonic.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a wire string into its typed message. An absent role
// defaults to "model". Unknown mime types or roles, undecodable audio
// and turn_complete envelopes carrying content are all ErrMalformed.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if env.TurnComplete {
		if env.Data != "" {
			return nil, fmt.Errorf("%w: turn_complete envelope carries content", ErrMalformed)
		}
		return TurnComplete{}, nil
	}

	role := env.Role
	if role == "" {
		role = RoleModel
	}
	if role != RoleUser && role != RoleModel {
		return nil, fmt.Errorf("%w: unknown role %q", ErrMalformed, env.Role)
	}

	switch env.MimeType {
	case MimeText:
		if role == RoleUser {
			return UserText{Text: env.Data}, nil
		}
		return ModelText{Text: env.Data}, nil

	case MimeAudioPCM:
		pcm, err := base64.StdEncoding.DecodeString(env.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64 audio: %v", ErrMalformed, err)
		}
		if role == RoleUser {
			return UserAudio{PCM: pcm}, nil
		}
		return ModelAudio{PCM: pcm}, nil

	default:
		return nil, fmt.Errorf("%w: unknown mime type %q", ErrMalformed, env.MimeType)
	}
}
