package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog/log"

	"github.com/charla-ai/charla/pkg/chat"
)

// Conn is the subset of *websocket.Conn the session writes through; tests
// substitute a stub.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Services bundles the chat core collaborators a session dispatches into.
// Transcriber may be nil when speech-to-text is not configured.
type Services struct {
	Resolver    *chat.Resolver
	History     *chat.History
	Pipeline    *chat.Pipeline
	Recorder    *chat.Recorder
	Transcriber chat.Transcriber

	// CallTimeout bounds the transcription call; the pipeline bounds its own
	// stages.
	CallTimeout time.Duration
}

// Session is the per-connection state machine. Frames are read by the
// transport goroutine and handed to Handle, which processes init frames
// inline and queues content frames for the worker goroutine, so pipeline
// work never blocks the connection's read loop (and with it ping/pong
// handling). Within a session, content frames are processed one at a time.
type Session struct {
	id      string
	conn    Conn
	hub     *Hub
	svc     Services
	baseCtx context.Context

	writeMu sync.Mutex

	jobs chan InboundFrame
	done chan struct{}
	once sync.Once
}

// NewSession registers the connection in the hub, emits the initial status
// frame and starts the worker. Callers own the read loop.
func NewSession(ctx context.Context, conn Conn, hub *Hub, svc Services) *Session {
	if svc.CallTimeout <= 0 {
		svc.CallTimeout = chat.DefaultStageTimeout
	}
	s := &Session{
		id:      shortuuid.New(),
		conn:    conn,
		hub:     hub,
		svc:     svc,
		baseCtx: ctx,
		jobs:    make(chan InboundFrame, 16),
		done:    make(chan struct{}),
	}
	hub.Add(s)
	go s.work()

	if err := s.send(OutboundFrame{Type: FrameStatus, Message: "Connected to the Charla backend. Hello!"}); err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Msg("failed to send hello frame")
	}
	log.Info().Str("session_id", s.id).Msg("session connected")
	return s
}

// Close deregisters the session and closes the connection. Idempotent.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.Remove(s)
		_ = s.conn.Close()
		log.Info().Str("session_id", s.id).Msg("session disconnected")
	})
}

// Handle classifies one inbound frame and dispatches it. Unrecognized or
// incomplete frames are logged and ignored so malformed probes never break
// the session.
func (s *Session) Handle(raw []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Debug().Err(err).Str("session_id", s.id).Msg("ignoring unparseable frame")
		return
	}

	switch frame.Type {
	case FrameInit:
		_ = s.send(OutboundFrame{Type: FrameStatus, Message: "Session ready."})

	case FrameText, FrameAudio:
		if strings.TrimSpace(frame.ConversationID) == "" {
			_ = s.send(OutboundFrame{Type: FrameError, Message: "missing conversation_id"})
			return
		}
		if frame.Type == FrameText && strings.TrimSpace(frame.Text) == "" {
			log.Debug().Str("session_id", s.id).Msg("ignoring text frame with no payload")
			return
		}
		select {
		case s.jobs <- frame:
		case <-s.done:
		}

	default:
		log.Debug().Str("session_id", s.id).Str("type", frame.Type).Msg("ignoring unrecognized frame")
	}
}

func (s *Session) work() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.jobs:
			switch frame.Type {
			case FrameText:
				s.handleText(frame)
			case FrameAudio:
				s.handleAudio(frame)
			}
		}
	}
}

// handleText runs the full exchange: resolve → history → pipeline → record,
// then emits the response frames.
func (s *Session) handleText(frame InboundFrame) {
	_ = s.send(OutboundFrame{Type: FrameStatus, Message: "Processing your request..."})

	ctx := s.baseCtx
	conv, persona, err := s.svc.Resolver.Resolve(ctx, frame.ConversationID, frame.PersonaID)
	if err != nil {
		if chat.IsInvalidIdentifier(err) {
			_ = s.send(OutboundFrame{Type: FrameError, Message: "invalid conversation: " + err.Error()})
		} else {
			log.Error().Err(err).Str("session_id", s.id).Msg("conversation resolution failed")
			_ = s.send(OutboundFrame{Type: FrameError, Message: "internal server error"})
		}
		return
	}

	history, err := s.svc.History.Window(ctx, conv.ID)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.id).Str("conversation_id", conv.ID).Msg("history load failed")
		_ = s.send(OutboundFrame{Type: FrameError, Message: "internal server error"})
		return
	}

	reply := s.svc.Pipeline.Run(ctx, frame.Text, persona, history)

	if err := s.svc.Recorder.Record(ctx, conv.ID, frame.Text, reply.Text); err != nil {
		log.Error().Err(err).Str("session_id", s.id).Str("conversation_id", conv.ID).Msg("exchange persistence failed")
		_ = s.send(OutboundFrame{Type: FrameError, Message: "internal server error"})
		return
	}

	_ = s.send(OutboundFrame{
		Type:           FrameTextResponse,
		Text:           reply.Text,
		ConversationID: conv.ID,
	})
	if len(reply.Audio) > 0 {
		_ = s.send(OutboundFrame{
			Type:  FrameAudioResponse,
			Audio: base64.StdEncoding.EncodeToString(reply.Audio),
		})
	}
}

// handleAudio transcribes the payload and returns the transcript. It never
// invokes the pipeline: the client reviews the transcript and resubmits it
// as a text frame.
func (s *Session) handleAudio(frame InboundFrame) {
	_ = s.send(OutboundFrame{Type: FrameStatus, Message: "Transcribing audio..."})

	if s.svc.Transcriber == nil {
		_ = s.send(OutboundFrame{Type: FrameError, Message: "transcription is not configured"})
		return
	}
	audio, err := base64.StdEncoding.DecodeString(frame.Audio)
	if err != nil || len(audio) == 0 {
		_ = s.send(OutboundFrame{Type: FrameError, Message: "invalid audio payload"})
		return
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, s.svc.CallTimeout)
	defer cancel()
	text, err := s.svc.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Msg("transcription failed")
		_ = s.send(OutboundFrame{Type: FrameError, Message: "could not transcribe audio"})
		return
	}

	_ = s.send(OutboundFrame{
		Type:           FrameTranscriptionResult,
		Text:           text,
		ConversationID: frame.ConversationID,
	})
}

func (s *Session) send(frame OutboundFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
