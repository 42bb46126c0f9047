// Package bridge mediates one live phone call across three websocket legs:
// the telephony media stream, the realtime AI model, and the observer used
// for configuration and transcript mirroring.
package bridge

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/antoniostano/trunkline/internal/observability"
	"github.com/antoniostano/trunkline/internal/realtime"
	"github.com/antoniostano/trunkline/internal/reliability"
	"github.com/antoniostano/trunkline/internal/telephony"
)

// ModelDialer opens the model leg with the credential supplied for the call.
type ModelDialer func(ctx context.Context, credential string) (Conn, error)

// Archiver is an optional tap fed transcript lines and usage snapshots. It
// must not block; failures never affect bridging.
type Archiver interface {
	ArchiveLine(callID, role, text string)
	ArchiveUsage(callID string, input, output int64)
}

// Config carries the fixed model-session defaults for every call.
type Config struct {
	Voice              string
	TranscriptionModel string
	Instructions       string
	Temperature        float64
}

// UsageEvent is the synthetic snapshot broadcast to the observer leg after
// each response completion that carried usage.
type UsageEvent struct {
	Event string `json:"event"`
	Usage Usage  `json:"usage"`
}

// Bridge owns the session state and registry for one call at a time.
// Every inbound event on any leg is processed start-to-finish under one
// mutex, which gives each handler the read-then-write atomicity the
// barge-in arithmetic depends on.
type Bridge struct {
	mu       sync.Mutex
	cfg      Config
	dial     ModelDialer
	metrics  *observability.Metrics
	archiver Archiver

	registry *Registry
	session  *Session
}

func New(cfg Config, dial ModelDialer, metrics *observability.Metrics, archiver Archiver) *Bridge {
	b := &Bridge{
		cfg:      cfg,
		dial:     dial,
		metrics:  metrics,
		archiver: archiver,
		session:  newSession(),
	}
	b.registry = NewRegistry(b.resetLocked)
	return b
}

// resetLocked runs as the registry's all-empty hook, with b.mu held.
func (b *Bridge) resetLocked() {
	log.Printf("call %s: all legs closed, resetting session", b.session.CallID)
	b.session.reset()
	b.metrics.LegEvents.WithLabelValues("session", "reset").Inc()
}

// AttachTelephony installs the telephony leg and stores the model
// credential for this call. Any previous telephony connection is
// force-closed first.
func (b *Bridge) AttachTelephony(conn Conn, credential string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attachLocked(RoleTelephony, conn)
	b.session.Credential = credential
}

// AttachObserver installs the observer leg, preempting any previous one.
func (b *Bridge) AttachObserver(conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attachLocked(RoleObserver, conn)
}

func (b *Bridge) attachLocked(role Role, conn Conn) {
	preempted, err := b.registry.Attach(role, conn)
	if err != nil {
		// Attach from idle or open never fails; a connecting model slot is
		// the only occupant Attach cannot displace.
		log.Printf("attach %s: %v", role, err)
		return
	}
	if preempted {
		b.metrics.LegEvents.WithLabelValues(string(role), "preempted").Inc()
	}
	b.metrics.LegEvents.WithLabelValues(string(role), "attached").Inc()
	b.metrics.ActiveLegs.WithLabelValues(string(role)).Set(1)
	log.Printf("call %s: %s leg attached", b.session.CallID, role)
}

// DetachTelephony clears the telephony slot if conn still holds it. The
// registry cascade also tears down the model leg.
func (b *Bridge) DetachTelephony(conn Conn) {
	b.detach(RoleTelephony, conn)
}

// DetachObserver clears the observer slot if conn still holds it.
func (b *Bridge) DetachObserver(conn Conn) {
	b.detach(RoleObserver, conn)
}

func (b *Bridge) detach(role Role, conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.registry.Holds(role, conn) {
		return
	}
	b.detachLocked(role)
}

func (b *Bridge) detachLocked(role Role) {
	b.registry.Detach(role)
	b.metrics.LegEvents.WithLabelValues(string(role), "detached").Inc()
	b.syncLegGaugesLocked()
}

func (b *Bridge) syncLegGaugesLocked() {
	for _, role := range roles {
		v := 0.0
		if b.registry.State(role) == LegOpen {
			v = 1.0
		}
		b.metrics.ActiveLegs.WithLabelValues(string(role)).Set(v)
	}
}

// Shutdown tears down all legs immediately.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
}

func (b *Bridge) teardownLocked() {
	b.registry.DetachAll()
	b.syncLegGaugesLocked()
}

// HandleTelephonyMessage processes one inbound frame from the telephony
// leg. Malformed frames are logged and dropped; they never abort the call.
func (b *Bridge) HandleTelephonyMessage(conn Conn, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.registry.Holds(RoleTelephony, conn) {
		return
	}

	parsed, err := telephony.ParseEvent(data)
	if err != nil {
		log.Printf("call %s: dropping telephony frame: %v", b.session.CallID, err)
		b.metrics.MalformedMessages.WithLabelValues(string(RoleTelephony)).Inc()
		return
	}

	switch msg := parsed.(type) {
	case telephony.StartEvent:
		b.session.beginStream(msg.Start.StreamSID)
		log.Printf("call %s: stream %s started", b.session.CallID, msg.Start.StreamSID)
		b.tryConnectModelLocked()
	case telephony.MediaEvent:
		b.session.LatestMediaTS = int64(msg.Media.Timestamp)
		if modelConn := b.registry.Conn(RoleModel); modelConn != nil {
			b.writeJSONLocked(RoleModel, modelConn, realtime.NewInputAudioAppend(msg.Media.Payload))
			b.metrics.RelayedFrames.WithLabelValues("caller_audio").Inc()
		}
		// No model leg: the frame is dropped. Audio sent while a leg is
		// down is lost permanently; there is no queue and no retry.
	case telephony.StopEvent:
		log.Printf("call %s: telephony stop, tearing down", b.session.CallID)
		b.teardownLocked()
	case telephony.ConnectedEvent, telephony.MarkEvent:
		// Handshake and playback-checkpoint echoes carry nothing we track.
	}
}

// tryConnectModelLocked opens the model leg when every precondition holds:
// a live telephony leg, a stream id, a credential, and an empty model
// slot. It is idempotent; a failed guard is retried on the next
// qualifying event rather than surfaced as an error.
func (b *Bridge) tryConnectModelLocked() {
	if b.registry.State(RoleModel) != LegIdle {
		return
	}
	if b.registry.Conn(RoleTelephony) == nil {
		return
	}
	if b.session.StreamID == "" || b.session.Credential == "" {
		log.Printf("call %s: model connect skipped (stream or credential missing)", b.session.CallID)
		return
	}
	if b.dial == nil {
		log.Printf("call %s: model connect skipped (no dialer configured)", b.session.CallID)
		return
	}
	if err := b.registry.MarkConnecting(RoleModel); err != nil {
		log.Printf("call %s: model connect skipped: %v", b.session.CallID, err)
		return
	}
	go b.connectModel(b.session.Credential)
}

// connectModel dials outside the bridge lock, then finishes the attach and
// sends the one-time configuration handshake under it.
func (b *Bridge) connectModel(credential string) {
	conn, err := b.dial(context.Background(), credential)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		log.Printf("call %s: model dial failed: %v", b.session.CallID, err)
		_ = b.registry.AbortConnecting(RoleModel)
		b.registry.CheckEmpty()
		return
	}
	if b.registry.State(RoleModel) != LegConnecting || b.registry.Conn(RoleTelephony) == nil {
		// The telephony leg went away mid-dial; the call is over.
		_ = conn.Close()
		if b.registry.State(RoleModel) == LegConnecting {
			_ = b.registry.AbortConnecting(RoleModel)
		}
		b.registry.CheckEmpty()
		return
	}

	if _, err := b.registry.Attach(RoleModel, conn); err != nil {
		log.Printf("call %s: model attach failed: %v", b.session.CallID, err)
		_ = conn.Close()
		return
	}
	b.metrics.LegEvents.WithLabelValues(string(RoleModel), "attached").Inc()
	b.metrics.ActiveLegs.WithLabelValues(string(RoleModel)).Set(1)
	log.Printf("call %s: model leg attached", b.session.CallID)

	// Exactly one configuration frame, then the model speaks first.
	update := realtime.NewSessionUpdate(realtime.SessionDefaults{
		Voice:              b.cfg.Voice,
		TranscriptionModel: b.cfg.TranscriptionModel,
		Instructions:       b.cfg.Instructions,
		Temperature:        b.cfg.Temperature,
	}, b.session.SavedConfig)
	b.writeJSONLocked(RoleModel, conn, update)
	b.writeJSONLocked(RoleModel, conn, realtime.NewResponseCreate())

	go b.modelReadLoop(conn)
}

func (b *Bridge) modelReadLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		b.handleModelMessage(conn, data)
	}

	// Only the model slot is cleared; the telephony leg keeps the call
	// alive. A later start event is what revives the model leg — there is
	// no automatic reconnect.
	b.mu.Lock()
	if b.registry.Holds(RoleModel, conn) {
		log.Printf("call %s: model leg closed", b.session.CallID)
		b.detachLocked(RoleModel)
	}
	b.mu.Unlock()
}

// handleModelMessage relays every inbound model event verbatim to the
// observer, then applies the handful of types the bridge itself reacts to.
func (b *Bridge) handleModelMessage(conn Conn, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.registry.Holds(RoleModel, conn) {
		return
	}

	evt, err := realtime.ParseServerEvent(data)
	if err != nil {
		log.Printf("call %s: dropping model frame: %v", b.session.CallID, err)
		b.metrics.MalformedMessages.WithLabelValues(string(RoleModel)).Inc()
		return
	}

	b.mirrorToObserverLocked(evt.Raw)

	switch evt.Type {
	case realtime.TypeSpeechStarted:
		b.truncateLocked()
	case realtime.TypeResponseAudioDelta:
		b.relayAudioLocked(evt)
	case realtime.TypeResponseDone:
		b.accumulateUsageLocked(evt)
		// Natural completion: nothing is left to truncate.
		b.session.clearResponse()
	case realtime.TypeOutputItemDone:
		b.accumulateUsageLocked(evt)
	case realtime.TypeInputTranscriptionDone:
		if b.archiver != nil && evt.Transcript != "" {
			b.archiver.ArchiveLine(b.session.CallID, "caller", evt.Transcript)
		}
	case realtime.TypeAudioTranscriptDone:
		if b.archiver != nil && evt.Transcript != "" {
			b.archiver.ArchiveLine(b.session.CallID, "assistant", evt.Transcript)
		}
	case realtime.TypeError:
		if reliability.IsRetryableRealtimeErrorCode(evt.Code) {
			log.Printf("call %s: transient model error %q", b.session.CallID, evt.Code)
		} else {
			log.Printf("call %s: model error %q", b.session.CallID, evt.Code)
		}
	}
}

// truncateLocked implements barge-in: the caller started speaking while an
// assistant response may still be playing. If nothing is in flight the
// event is a no-op, which guards against truncating a response that
// already finished or was already truncated.
func (b *Bridge) truncateLocked() {
	if !b.session.responseInFlight() {
		return
	}

	elapsed := b.session.LatestMediaTS - b.session.ResponseStartTS
	if elapsed < 0 {
		elapsed = 0
	}

	if modelConn := b.registry.Conn(RoleModel); modelConn != nil {
		b.writeJSONLocked(RoleModel, modelConn, realtime.NewItemTruncate(b.session.LastAssistantItemID, elapsed))
	}
	if telConn := b.registry.Conn(RoleTelephony); telConn != nil {
		b.writeJSONLocked(RoleTelephony, telConn, telephony.NewOutboundClear(b.session.StreamID))
	}

	b.session.clearResponse()
	b.metrics.Truncations.Inc()
	log.Printf("call %s: barge-in, truncated at %dms", b.session.CallID, elapsed)
}

// relayAudioLocked forwards one assistant audio delta to the caller. The
// first delta of a response pins the playback start to the telephony
// clock; the media frame is always followed by its checkpoint marker.
func (b *Bridge) relayAudioLocked(evt realtime.ServerEvent) {
	if b.session.ResponseStartTS == tsUnset {
		b.session.ResponseStartTS = b.session.LatestMediaTS
	}
	if evt.ItemID != "" {
		b.session.LastAssistantItemID = evt.ItemID
	}

	telConn := b.registry.Conn(RoleTelephony)
	if telConn == nil {
		return
	}
	b.writeJSONLocked(RoleTelephony, telConn, telephony.NewOutboundMedia(b.session.StreamID, evt.Delta))
	b.writeJSONLocked(RoleTelephony, telConn, telephony.NewOutboundMark(b.session.StreamID))
	b.metrics.RelayedFrames.WithLabelValues("assistant_audio").Inc()
}

func (b *Bridge) accumulateUsageLocked(evt realtime.ServerEvent) {
	if evt.Response == nil || evt.Response.Usage == nil {
		return
	}
	usage := evt.Response.Usage
	b.session.Usage.Input += usage.InputTokens
	b.session.Usage.Output += usage.OutputTokens
	b.metrics.UsageTokens.WithLabelValues("input").Add(float64(usage.InputTokens))
	b.metrics.UsageTokens.WithLabelValues("output").Add(float64(usage.OutputTokens))

	if obsConn := b.registry.Conn(RoleObserver); obsConn != nil {
		b.writeJSONLocked(RoleObserver, obsConn, UsageEvent{Event: "usage", Usage: b.session.Usage})
	}
	if b.archiver != nil {
		b.archiver.ArchiveUsage(b.session.CallID, b.session.Usage.Input, b.session.Usage.Output)
	}
}

func (b *Bridge) mirrorToObserverLocked(raw json.RawMessage) {
	obsConn := b.registry.Conn(RoleObserver)
	if obsConn == nil {
		return
	}
	b.writeJSONLocked(RoleObserver, obsConn, raw)
	b.metrics.RelayedFrames.WithLabelValues("observer_mirror").Inc()
}

// HandleObserverMessage captures configuration overrides and forwards
// everything 1:1 to the model leg when it is open.
func (b *Bridge) HandleObserverMessage(conn Conn, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.registry.Holds(RoleObserver, conn) {
		return
	}

	var env struct {
		Type    string                     `json:"type"`
		Session map[string]json.RawMessage `json:"session"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("call %s: dropping observer frame: %v", b.session.CallID, err)
		b.metrics.MalformedMessages.WithLabelValues(string(RoleObserver)).Inc()
		return
	}

	if env.Type == realtime.TypeSessionUpdate {
		b.session.SavedConfig = env.Session
		log.Printf("call %s: saved observer session config (%d keys)", b.session.CallID, len(env.Session))
	}

	if modelConn := b.registry.Conn(RoleModel); modelConn != nil {
		b.writeJSONLocked(RoleModel, modelConn, json.RawMessage(data))
		b.metrics.RelayedFrames.WithLabelValues("observer_forward").Inc()
	}
}

func (b *Bridge) writeJSONLocked(role Role, conn Conn, v any) {
	if err := conn.WriteJSON(v); err != nil {
		log.Printf("call %s: %s write failed: %v", b.session.CallID, role, err)
		b.metrics.WSWriteErrors.WithLabelValues(string(role)).Inc()
	}
}

// Snapshot is a point-in-time view of the active call for the status API.
type Snapshot struct {
	CallID    string            `json:"call_id"`
	StreamID  string            `json:"stream_id,omitempty"`
	StartedAt time.Time         `json:"started_at,omitempty"`
	Usage     Usage             `json:"usage"`
	Legs      map[string]string `json:"legs"`
}

func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	legs := make(map[string]string, len(roles))
	for _, role := range roles {
		legs[string(role)] = b.registry.State(role).String()
	}
	return Snapshot{
		CallID:    b.session.CallID,
		StreamID:  b.session.StreamID,
		StartedAt: b.session.StartedAt,
		Usage:     b.session.Usage,
		Legs:      legs,
	}
}
