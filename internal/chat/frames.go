package chat

import (
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
)

// Frame is one event on the chat stream. The client contract is
// text* → message_done → done, with error as an alternative terminal.
type Frame struct {
	Type        string `json:"type"`
	Content     string `json:"content,omitempty"`
	Message     string `json:"message,omitempty"`
	LeadID      string `json:"leadId,omitempty"`
	LeadCreated bool   `json:"leadCreated,omitempty"`
	Email       string `json:"email,omitempty"`
	Rejected    bool   `json:"rejected,omitempty"`
	IsComplete  bool   `json:"isComplete,omitempty"`
}

// Frame types.
const (
	FrameText        = "text"
	FrameMessageDone = "message_done"
	FrameDone        = "done"
	FrameError       = "error"
)

// TextFrame carries one streamed token batch.
func TextFrame(content string) Frame {
	return Frame{Type: FrameText, Content: content}
}

// MessageDoneFrame marks the end of the assistant utterance.
func MessageDoneFrame() Frame {
	return Frame{Type: FrameMessageDone}
}

// ErrorFrame is terminal; no lifecycle frames follow it.
func ErrorFrame(message string) Frame {
	return Frame{Type: FrameError, Message: message}
}

// FrameSink receives frames in emission order.
type FrameSink interface {
	Send(f Frame) error
}

// SSEWriter writes frames to an http.ResponseWriter as server-sent
// events, flushing after every frame so tokens reach the browser as
// they are generated.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter sets the SSE response headers and returns a writer. It
// fails when the underlying writer cannot flush (e.g. an unbuffered
// test recorder wrapped in middleware that hides Flusher).
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, eris.New("chat: response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) Send(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return eris.Wrap(err, "chat: marshal frame")
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return eris.Wrap(err, "chat: write frame")
	}
	if _, err := s.w.Write(data); err != nil {
		return eris.Wrap(err, "chat: write frame")
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return eris.Wrap(err, "chat: write frame")
	}
	s.flusher.Flush()
	return nil
}
