package gate

import (
	"fmt"
	"strings"
	"time"

	"github.com/skymesh/fleetcore/scoring"
)

// OnMessage dispatches one raw inbound message from a connection.
// Parse failures and unknown types produce an error reply to the
// sender only; the connection stays open. Any inbound traffic counts
// as liveness.
func (g *Gate) OnMessage(connectionID string, raw []byte) {
	g.mu.RLock()
	conn, ok := g.clients[connectionID]
	g.mu.RUnlock()
	if !ok {
		g.logger.Warnf("Message from unknown connection %s dropped", connectionID)
		return
	}
	conn.touch()

	msg, err := parseInbound(raw)
	if err != nil {
		g.sendEvent(conn, "error", map[string]string{"message": err.Error()}, "")
		return
	}

	switch msg.kind {
	case kindSubscribe:
		applied := conn.setSubscriptions(msg.subscribe.Channels, true)
		g.sendEvent(conn, "subscribed", map[string]interface{}{"channels": applied}, msg.requestID)

	case kindUnsubscribe:
		applied := conn.setSubscriptions(msg.subscribe.Channels, false)
		g.sendEvent(conn, "unsubscribed", map[string]interface{}{"channels": applied}, msg.requestID)

	case kindPing:
		g.sendEvent(conn, "pong", nil, msg.requestID)

	case kindPong:
		// Liveness acknowledgment; the touch above already counted it

	case kindGetAlerts:
		g.sendEvent(conn, "alerts", g.cache.GetActiveAlerts(), msg.requestID)

	case kindGetActiveMissions:
		g.sendEvent(conn, "active_missions", g.state.ActiveMissions(), msg.requestID)

	case kindGetMissionStatus:
		mission, ok := g.state.GetMission(msg.missionStatus.MissionID)
		if !ok {
			g.sendEvent(conn, "error", map[string]string{
				"message": fmt.Sprintf("unknown mission %q", msg.missionStatus.MissionID),
			}, msg.requestID)
			return
		}
		g.sendEvent(conn, "mission_status", mission, msg.requestID)

	case kindAcknowledgeAlert:
		g.handleAcknowledgeAlert(conn, msg)

	case kindResolveAlert:
		g.handleResolveAlert(conn, msg)

	case kindAssignMission:
		g.handleAssignMission(conn, msg)

	case kindGetClientInfo:
		g.sendEvent(conn, "client_info", map[string]interface{}{
			"clientId":      conn.id,
			"subscriptions": conn.subscriptionList(),
			"connectedAt":   conn.connectedAt,
			"lastLiveness":  conn.lastSeen(),
		}, msg.requestID)
	}
}

// handleAcknowledgeAlert marks an alert acknowledged. The updated
// alert is broadcast on the same channel the raise went out on, so
// everyone who saw the alert sees its state change.
func (g *Gate) handleAcknowledgeAlert(conn *Connection, msg *inbound) {
	id := msg.alertAction.AlertID
	if !g.cache.AcknowledgeAlert(id) {
		g.sendEvent(conn, "error", map[string]string{
			"message": fmt.Sprintf("no active alert %q", id),
		}, msg.requestID)
		return
	}

	alert, _ := g.cache.GetAlert(id)
	g.sendEvent(conn, "alert_acknowledged", alert, msg.requestID)
	g.Broadcast("alert_acknowledged", alert, AlertChannel(alert.Type))
}

// handleResolveAlert resolves an alert through the cache. Resolution
// is idempotent: resolving an unknown or already-resolved id replies
// success without broadcasting anything.
func (g *Gate) handleResolveAlert(conn *Connection, msg *inbound) {
	id := msg.alertAction.AlertID
	resolvedBy := msg.alertAction.ResolvedBy
	if resolvedBy == "" {
		resolvedBy = conn.id
	}

	alert, wasActive := g.cache.GetAlert(id)
	g.cache.ResolveAlert(id, resolvedBy)
	if g.tracker != nil {
		g.tracker.Forget(id)
	}

	if !wasActive {
		g.sendEvent(conn, "alert_resolved", map[string]interface{}{"alertId": id}, msg.requestID)
		return
	}

	now := time.Now()
	alert.Resolved = true
	alert.ResolvedBy = resolvedBy
	alert.ResolvedAt = &now

	g.sendEvent(conn, "alert_resolved", alert, msg.requestID)
	g.Broadcast("alert_resolved", alert, AlertChannel(alert.Type))

	if g.OnAlertResolved != nil {
		g.OnAlertResolved(alert)
	}
}

// handleAssignMission assigns a mission to a drone. With an explicit
// droneId the drone must be compatible; without one the scorer ranks
// the live fleet and the best compatible candidate wins. A successful
// assignment is recorded in the fleet state and broadcast to mission
// subscribers.
func (g *Gate) handleAssignMission(conn *Connection, msg *inbound) {
	missionID := msg.assignMission.MissionID
	mission, ok := g.state.GetMission(missionID)
	if !ok {
		g.sendEvent(conn, "error", map[string]string{
			"message": fmt.Sprintf("unknown mission %q", missionID),
		}, msg.requestID)
		return
	}
	if !mission.Status.Open() {
		g.sendEvent(conn, "error", map[string]string{
			"message": fmt.Sprintf("mission %q is %s", missionID, mission.Status),
		}, msg.requestID)
		return
	}
	if mission.DroneID != "" {
		g.sendEvent(conn, "error", map[string]string{
			"message": fmt.Sprintf("mission %q is already assigned to drone %s", missionID, mission.DroneID),
		}, msg.requestID)
		return
	}

	var result scoring.Result
	if droneID := msg.assignMission.DroneID; droneID != "" {
		drone, ok := g.state.GetDrone(droneID)
		if !ok {
			g.sendEvent(conn, "error", map[string]string{
				"message": fmt.Sprintf("unknown drone %q", droneID),
			}, msg.requestID)
			return
		}
		result = g.scorer.Score(mission, drone)
		if !result.Compatible {
			g.sendEvent(conn, "error", map[string]string{
				"message": fmt.Sprintf("drone %q is not compatible with mission %q: %s",
					droneID, missionID, strings.Join(result.Issues, "; ")),
			}, msg.requestID)
			return
		}
	} else {
		ranked := g.scorer.Rank(mission, g.state.Drones())
		found := false
		for _, r := range ranked {
			if r.Compatible {
				result = r
				found = true
				break
			}
		}
		if !found {
			g.sendEvent(conn, "error", map[string]string{
				"message": fmt.Sprintf("no compatible drone for mission %q", missionID),
			}, msg.requestID)
			return
		}
	}

	g.state.AssignMission(missionID, result.DroneID)
	mission, _ = g.state.GetMission(missionID)

	assignment := map[string]interface{}{
		"mission": mission,
		"score":   result,
	}
	g.sendEvent(conn, "mission_assigned", assignment, msg.requestID)
	g.Broadcast("mission_assigned", assignment, ChannelMissions)
}

// AlertChannel maps an alert type to the broadcast channel its
// lifecycle events go out on
func AlertChannel(alertType string) Channel {
	switch alertType {
	case "battery_emergency":
		return ChannelEmergency
	case "battery_critical", "battery_warning", "battery_low":
		return ChannelBattery
	default:
		return ChannelSafety
	}
}
