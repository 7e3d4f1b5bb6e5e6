package homebase

import (
	"encoding/json"
	"strings"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
	"github.com/sheinberglab/fleet-gateway/pkg/translate"
)

// handleFrame is the single entry point for every inbound byte payload,
// whether it arrived directly off the socket or was produced by chunk
// reassembly. Only the Link's run loop calls this.
func (l *Link) handleFrame(raw []byte) {
	var frame models.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		l.log.Warn().Err(err).Str("address", l.address).Msg("dropping malformed frame")
		return
	}

	switch {
	case frame.RequestID != "" && frame.Status != "":
		l.handleResponse(frame)
	case frame.IsChunkedMessage:
		l.handleChunk(frame)
	case frame.Type == "datapoint":
		l.handleDatapoint(frame)
	default:
		l.handleControlAck(frame)
	}
}

func (l *Link) handleResponse(frame models.InboundFrame) {
	switch frame.Status {
	case "ok":
		l.requests.resolve(frame.RequestID, evalResult{value: frame.Result})
	case "error":
		l.requests.resolve(frame.RequestID, evalResult{err: errEval(frame.Error)})
		l.publisher.Publish("TCL_ERROR", frame.Error)
	default:
		l.log.Debug().Str("request_id", frame.RequestID).Str("status", frame.Status).Msg("unrecognized response status")
	}

	if l.conn != nil {
		l.drainQueueOnce(l.conn)
	}
}

func (l *Link) handleChunk(frame models.InboundFrame) {
	assembled, complete, err := l.chunks.apply(frame.MessageID, frame.ChunkIndex, frame.TotalChunks, frame.Data)
	if err != nil {
		l.log.Warn().Err(err).Str("address", l.address).Str("message_id", frame.MessageID).Msg("dropping invalid chunk buffer")
		return
	}

	if !complete {
		return
	}

	l.handleFrame([]byte(assembled))
}

func (l *Link) handleDatapoint(frame models.InboundFrame) {
	source, typ, value := translate.Translate(frame.Name, frame.Data)

	entry, changed := l.cache.Apply(l.address, source, typ, value)
	if !changed {
		return
	}

	if l.recorder != nil {
		if err := l.recorder.RecordStatusChange(l.ctx, entry); err != nil {
			l.log.Warn().Err(err).Str("address", l.address).Msg("failed to record status change")
		}
	}

	l.publisher.Publish("status_changes", entry)
}

// handleControlAck suppresses the benign chatter spec.md §4.C calls out:
// generic control acks and "Datapoint not found" acks produced by touches
// on keys that don't yet exist on the remote.
func (l *Link) handleControlAck(frame models.InboundFrame) {
	if strings.Contains(strings.ToLower(frame.Error), "datapoint not found") {
		return
	}

	l.log.Debug().Str("address", l.address).Str("action", frame.Action).Msg("control ack")
}
