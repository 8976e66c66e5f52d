package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tigasdev/signaling/internal/rooms"
)

// Inbound event names. Outbound names live in internal/rooms next to their
// payload types.
const (
	eventJoinRoom     = "join-room"
	eventOffer        = "offer"
	eventAnswer       = "answer"
	eventICECandidate = "ice-candidate"
	eventSendMessage  = "send-message"
	eventTypingStart  = "typing-start"
	eventTypingStop   = "typing-stop"
)

// envelope is the wire shape of every frame in both directions:
// {"event": "<name>", "data": {...}}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(outEnvelope{Event: event, Data: payload})
}

// parseFrame validates one inbound text frame and maps it onto the engine's
// closed event set. The envelope is parsed strictly; payload validation is
// limited to what the transport must guarantee (addressing, shape) — the
// engine owns semantic validation such as empty room ids.
func parseFrame(raw []byte) (rooms.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("malformed frame: trailing data")
	}

	switch env.Event {
	case eventJoinRoom:
		var data struct {
			RoomID string `json:"roomId"`
			UserID string `json:"userId"`
		}
		if err := unmarshalData(env.Data, &data); err != nil {
			return nil, err
		}
		return rooms.JoinRoom{RoomID: data.RoomID, UserID: data.UserID}, nil

	case eventOffer, eventAnswer, eventICECandidate:
		target, payload, err := parseRelayData(env.Data)
		if err != nil {
			return nil, err
		}
		switch env.Event {
		case eventOffer:
			return rooms.Offer{Target: target, Payload: payload}, nil
		case eventAnswer:
			return rooms.Answer{Target: target, Payload: payload}, nil
		default:
			return rooms.ICECandidate{Target: target, Payload: payload}, nil
		}

	case eventSendMessage:
		var data struct {
			Message string `json:"message"`
		}
		if err := unmarshalData(env.Data, &data); err != nil {
			return nil, err
		}
		return rooms.SendMessage{Text: data.Message}, nil

	case eventTypingStart:
		return rooms.TypingStart{}, nil

	case eventTypingStop:
		return rooms.TypingStop{}, nil

	case "":
		return nil, fmt.Errorf("missing event name")

	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
}

func unmarshalData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing data")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed data: %w", err)
	}
	return nil
}

// parseRelayData extracts the addressing field from a negotiation payload.
// The remaining fields stay opaque: the engine forwards them untouched,
// stamped with the sender's id.
func parseRelayData(raw json.RawMessage) (target string, payload map[string]any, err error) {
	var data map[string]any
	if err := unmarshalData(raw, &data); err != nil {
		return "", nil, err
	}
	target, ok := data["target"].(string)
	if !ok || target == "" {
		return "", nil, fmt.Errorf("target connection id is required")
	}
	delete(data, "target")
	return target, data, nil
}
