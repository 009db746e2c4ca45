// Package chatbroker mediates one chat turn at a time per Conversation:
// receive a user message over a bidirectional channel, optionally retrieve
// grounding context, stream an LLM reply back as deltas, and persist the
// finished (or interrupted) transcript.
package chatbroker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"medtutor/internal/config"
	"medtutor/internal/domain"
	"medtutor/internal/errs"
	"medtutor/internal/llmorch"
	"medtutor/internal/rag/retrieve"
	"medtutor/internal/store"
)

// Conn is the bidirectional JSON-framed transport a Broker drives. Satisfied
// by *gorilla/websocket.Conn; an interface here so turn logic can be tested
// without a live socket.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

const systemPrompt = "You are a medical study assistant. Answer concisely and cite retrieved context when it is provided. If no context is provided, answer from general medical knowledge and say so."

// Broker serializes turns per conversation and drives the retrieve/generate
// pipeline for each one.
type Broker struct {
	conversations    store.Conversations
	retriever        *retrieve.Retriever
	orch             *llmorch.Orchestrator
	historyWindow    int
	backpressureWait time.Duration

	turnLocks sync.Map // conversationID -> *sync.Mutex
}

// New builds a Broker. Zero-valued cfg fields fall back to spec defaults
// (history window 5, backpressure wait 2s).
func New(conversations store.Conversations, retriever *retrieve.Retriever, orch *llmorch.Orchestrator, cfg config.ChatConfig) *Broker {
	hw := cfg.HistoryWindow
	if hw <= 0 {
		hw = 5
	}
	bw := cfg.BackpressureWait
	if bw <= 0 {
		bw = 2 * time.Second
	}
	return &Broker{conversations: conversations, retriever: retriever, orch: orch, historyWindow: hw, backpressureWait: bw}
}

func (b *Broker) conversationLock(conversationID string) *sync.Mutex {
	v, _ := b.turnLocks.LoadOrStore(conversationID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Serve reads frames from conn until it errors or the caller's ctx is done,
// dispatching "message" frames to turns (serialized per conversationID) and
// "cancel" frames to whichever turn is currently in flight on this
// connection.
func (b *Broker) Serve(ctx context.Context, conn Conn, ownerID, conversationID string) {
	var writeMu sync.Mutex
	writeJSON := func(f OutboundFrame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(f)
	}

	var activeMu sync.Mutex
	var activeCancel context.CancelFunc

	for {
		var in InboundFrame
		if err := conn.ReadJSON(&in); err != nil {
			return
		}

		switch in.Type {
		case FrameTypeCancel:
			activeMu.Lock()
			if activeCancel != nil {
				activeCancel()
			}
			activeMu.Unlock()

		case FrameTypeMessage:
			lock := b.conversationLock(conversationID)
			if !lock.TryLock() {
				_ = writeJSON(OutboundFrame{Type: FrameTypeBusy})
				continue
			}
			turnCtx, cancel := context.WithCancel(ctx)
			activeMu.Lock()
			activeCancel = cancel
			activeMu.Unlock()

			go func(in InboundFrame) {
				defer lock.Unlock()
				defer func() {
					activeMu.Lock()
					activeCancel = nil
					activeMu.Unlock()
					cancel()
				}()
				b.runTurn(turnCtx, writeJSON, ownerID, conversationID, in)
			}(in)

		default:
			_ = writeJSON(OutboundFrame{Type: FrameTypeError, Code: "bad_request", Message: "unknown frame type"})
		}
	}
}

func (b *Broker) runTurn(ctx context.Context, writeJSON func(OutboundFrame) error, ownerID, conversationID string, in InboundFrame) {
	userMsg := domain.Message{ConversationID: conversationID, Role: domain.RoleUser, Content: in.Content}
	if _, err := b.conversations.AppendMessage(ctx, userMsg); err != nil {
		_ = writeJSON(errorFrame(err))
		return
	}

	var ragResult retrieve.Result
	if in.UseRAG && b.retriever != nil {
		res, err := b.retriever.Retrieve(ctx, ownerID, in.Content, retrieve.Options{})
		if err != nil {
			// Retrieval failure degrades to ungrounded mode rather than
			// failing the turn outright, per the opt-in semantics of use_rag.
			ragResult = retrieve.Result{}
		} else {
			ragResult = res
		}
	}

	history, err := b.conversations.ListMessages(ctx, conversationID, b.historyWindow)
	if err != nil {
		_ = writeJSON(errorFrame(err))
		return
	}

	prompt := buildPrompt(ragResult, history, in.Content)

	handle, err := b.orch.Start(ctx, llmorch.Request{
		OwnerID:   ownerID,
		Effort:    clampEffort(in.ReasoningEffort),
		Verbosity: clampVerbosity(in.Verbosity),
		Prompt:    prompt,
	})
	if err != nil {
		_ = writeJSON(errorFrame(err))
		return
	}

	backpressureBroke := b.forwardDeltas(handle, writeJSON)
	outcome := <-handle.Done

	assistantMsg := domain.Message{
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        outcome.FullText,
		Citations:      domainCitations(ragResult),
	}

	switch {
	case outcome.State == llmorch.StateCompleted && !backpressureBroke:
		_ = writeJSON(OutboundFrame{Type: FrameTypeEnd, Citations: outboundCitations(ragResult)})
	case outcome.State == llmorch.StateCancelled || backpressureBroke:
		assistantMsg.Interrupted = true
	default:
		_ = writeJSON(errorFrame(outcome.Err))
		assistantMsg.Interrupted = true
	}

	_, _ = b.conversations.AppendMessage(ctx, assistantMsg)
}

// forwardDeltas drains handle.Deltas onto an internal buffered channel that
// a single writer goroutine flushes to the connection. If the buffer stays
// full for longer than backpressureWait, the generation is cancelled and
// the turn is marked interrupted — the outbound side could not keep up.
func (b *Broker) forwardDeltas(handle *llmorch.Handle, writeJSON func(OutboundFrame) error) bool {
	const bufSize = 32
	outbound := make(chan OutboundFrame, bufSize)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for f := range outbound {
			if err := writeJSON(f); err != nil {
				return
			}
		}
	}()

	broke := false
	for delta := range handle.Deltas {
		if broke {
			continue // still drain so the producer goroutine never blocks
		}
		select {
		case outbound <- OutboundFrame{Type: FrameTypeDelta, Text: delta.Text}:
		case <-time.After(b.backpressureWait):
			broke = true
			handle.Cancel()
		}
	}
	close(outbound)
	<-writerDone
	return broke
}

func domainCitations(res retrieve.Result) []domain.Citation {
	out := make([]domain.Citation, 0, len(res.Citations))
	for _, c := range res.Citations {
		out = append(out, domain.Citation{ChunkID: c.ChunkID, Source: c.Source, Page: c.Page, Similarity: c.Similarity})
	}
	return out
}

func clampEffort(s string) llmorch.Effort {
	switch llmorch.Effort(s) {
	case llmorch.EffortMedium, llmorch.EffortHigh:
		return llmorch.Effort(s)
	default:
		return llmorch.EffortLow
	}
}

func clampVerbosity(s string) llmorch.Verbosity {
	switch llmorch.Verbosity(s) {
	case llmorch.VerbosityLow, llmorch.VerbosityHigh:
		return llmorch.Verbosity(s)
	default:
		return llmorch.VerbosityMedium
	}
}

func errorFrame(err error) OutboundFrame {
	code := "internal"
	switch {
	case errs.IsValidation(err):
		code = "validation"
	case errs.IsOwnership(err):
		code = "not_found"
	case errs.IsConflict(err):
		code = "conflict"
	}
	return OutboundFrame{Type: FrameTypeError, Code: code, Message: err.Error()}
}

func outboundCitations(res retrieve.Result) []OutboundCitation {
	out := make([]OutboundCitation, 0, len(res.Citations))
	for _, c := range res.Citations {
		out = append(out, OutboundCitation{Source: c.Source, Page: c.Page, ChunkID: c.ChunkID})
	}
	return out
}

func buildPrompt(ragResult retrieve.Result, history []domain.Message, userContent string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	if ragResult.ContextBlock != "" {
		b.WriteString("Retrieved context:\n")
		b.WriteString(ragResult.ContextBlock)
	} else {
		b.WriteString("No retrieved context.")
	}
	b.WriteString("\n\n")
	for _, m := range history {
		switch m.Role {
		case domain.RoleUser:
			fmt.Fprintf(&b, "User: %s\n", m.Content)
		case domain.RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n", m.Content)
		}
	}
	fmt.Fprintf(&b, "User: %s\n", userContent)
	return b.String()
}
