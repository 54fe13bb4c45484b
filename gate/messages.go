package gate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Channel is a named broadcast topic a connection can subscribe to
type Channel string

const (
	ChannelBattery     Channel = "battery"
	ChannelSafety      Channel = "safety"
	ChannelEmergency   Channel = "emergency"
	ChannelSystem      Channel = "system"
	ChannelDroneStatus Channel = "drone_status"
	ChannelMissions    Channel = "missions"

	// ChannelAll is the wildcard: a connection holding it receives
	// every broadcast regardless of target channel
	ChannelAll Channel = "all"
)

// ValidChannel reports whether c is one of the enumerated channels
func ValidChannel(c Channel) bool {
	switch c {
	case ChannelBattery, ChannelSafety, ChannelEmergency, ChannelSystem, ChannelDroneStatus, ChannelMissions, ChannelAll:
		return true
	}
	return false
}

// inboundKind enumerates the closed set of client message types
type inboundKind string

const (
	kindSubscribe         inboundKind = "subscribe"
	kindUnsubscribe       inboundKind = "unsubscribe"
	kindPing              inboundKind = "ping"
	kindPong              inboundKind = "pong"
	kindGetAlerts         inboundKind = "get_alerts"
	kindGetActiveMissions inboundKind = "get_active_missions"
	kindGetMissionStatus  inboundKind = "get_mission_status"
	kindAcknowledgeAlert  inboundKind = "acknowledge_alert"
	kindResolveAlert      inboundKind = "resolve_alert"
	kindAssignMission     inboundKind = "assign_mission"
	kindGetClientInfo     inboundKind = "get_client_info"
)

// envelope is the wire shape of every inbound client message
type envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"requestId,omitempty"`
}

// subscribePayload is the schema for subscribe and unsubscribe
type subscribePayload struct {
	Channels []string `json:"channels"`
}

// missionStatusPayload is the schema for get_mission_status
type missionStatusPayload struct {
	MissionID string `json:"missionId"`
}

// alertActionPayload is the schema for acknowledge_alert and
// resolve_alert
type alertActionPayload struct {
	AlertID    string `json:"alertId"`
	ResolvedBy string `json:"resolvedBy,omitempty"`
}

// assignMissionPayload is the schema for assign_mission. An empty
// droneId asks the scorer to pick the best compatible candidate.
type assignMissionPayload struct {
	MissionID string `json:"missionId"`
	DroneID   string `json:"droneId,omitempty"`
}

// inbound is one parsed, validated client message. Exactly the field
// matching the kind is populated.
type inbound struct {
	kind      inboundKind
	requestID string

	subscribe     *subscribePayload
	missionStatus *missionStatusPayload
	alertAction   *alertActionPayload
	assignMission *assignMissionPayload
}

// parseError describes a rejected inbound message. The text is part
// of the client contract: unknown types are reported by name.
type parseError struct {
	msg string
}

func (e *parseError) Error() string { return e.msg }

// parseInbound decodes and validates a raw client message. Every
// recognized type has its own schema; payloads with unrecognized
// fields are rejected before dispatch.
func parseInbound(raw []byte) (*inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &parseError{msg: fmt.Sprintf("malformed message: %v", err)}
	}
	if env.Type == "" {
		return nil, &parseError{msg: "message is missing a type"}
	}

	msg := &inbound{kind: inboundKind(env.Type), requestID: env.RequestID}

	switch msg.kind {
	case kindSubscribe, kindUnsubscribe:
		p := &subscribePayload{}
		if err := decodeStrict(env.Data, p); err != nil {
			return nil, &parseError{msg: fmt.Sprintf("invalid %s payload: %v", env.Type, err)}
		}
		if len(p.Channels) == 0 {
			return nil, &parseError{msg: fmt.Sprintf("%s requires at least one channel", env.Type)}
		}
		msg.subscribe = p
	case kindGetMissionStatus:
		p := &missionStatusPayload{}
		if err := decodeStrict(env.Data, p); err != nil {
			return nil, &parseError{msg: fmt.Sprintf("invalid %s payload: %v", env.Type, err)}
		}
		if p.MissionID == "" {
			return nil, &parseError{msg: "get_mission_status requires missionId"}
		}
		msg.missionStatus = p
	case kindAcknowledgeAlert, kindResolveAlert:
		p := &alertActionPayload{}
		if err := decodeStrict(env.Data, p); err != nil {
			return nil, &parseError{msg: fmt.Sprintf("invalid %s payload: %v", env.Type, err)}
		}
		if p.AlertID == "" {
			return nil, &parseError{msg: fmt.Sprintf("%s requires alertId", env.Type)}
		}
		msg.alertAction = p
	case kindAssignMission:
		p := &assignMissionPayload{}
		if err := decodeStrict(env.Data, p); err != nil {
			return nil, &parseError{msg: fmt.Sprintf("invalid %s payload: %v", env.Type, err)}
		}
		if p.MissionID == "" {
			return nil, &parseError{msg: "assign_mission requires missionId"}
		}
		msg.assignMission = p
	case kindPing, kindPong, kindGetAlerts, kindGetActiveMissions, kindGetClientInfo:
		// No payload
	default:
		return nil, &parseError{msg: fmt.Sprintf("unknown message type %q", env.Type)}
	}

	return msg, nil
}

// decodeStrict unmarshals data into v, rejecting unknown fields.
// A missing payload decodes as the zero value.
func decodeStrict(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// event is the wire shape of every server-originated message
type event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"requestId,omitempty"`
}

func encodeEvent(eventType string, data interface{}, requestID string) ([]byte, error) {
	return json.Marshal(event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}
