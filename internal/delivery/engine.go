// Package delivery implements the TUI Message Delivery Engine (L3): writing
// to a PTY is easy, knowing whether an interactive TUI accepted the write is
// not. The Engine resolves that by watching the output stream for a prompt,
// committing with a retried Enter, and falling back to a screen check when
// the stream itself is ambiguous.
package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentmux/agentmux/internal/agentmodel"
	"github.com/agentmux/agentmux/internal/coreconfig"
	"github.com/agentmux/agentmux/internal/corelog"
	"github.com/agentmux/agentmux/internal/corerr"
	"github.com/agentmux/agentmux/internal/runtimeadapter"
	"github.com/agentmux/agentmux/internal/sessioncmd"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Session is the PTY surface the engine needs: write, snapshot, and
// subscribe to the raw output stream.
type Session interface {
	Write(data []byte) error
	CapturePane(lastN int) string
	OnData(cb func(data []byte)) func()
}

// Engine is the single-attempt and retry-wrapped message delivery logic.
type Engine struct {
	cfg coreconfig.DeliveryConfig
	log *corelog.Logger
}

// New constructs an Engine from the delivery configuration.
func New(cfg coreconfig.DeliveryConfig, log *corelog.Logger) *Engine {
	if log == nil {
		log = corelog.Default()
	}
	return &Engine{cfg: cfg, log: log}
}

// SendMessageWithRetry performs up to cfg.MaxAttempts attempts of
// SendMessageToAgent. Between failing attempts it sends Escape once if the
// session isn't at prompt, and always drains the command line before
// retrying.
func (e *Engine) SendMessageWithRetry(sess Session, text string, runtimeType agentmodel.RuntimeType) error {
	attempts := e.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := e.SendMessageToAgent(sess, text, runtimeType)
		if err == nil {
			return nil
		}
		lastErr = err

		e.log.Warn("delivery attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if attempt == attempts {
			break
		}

		pane := sess.CapturePane(5)
		if !runtimeadapter.AtPrompt(runtimeadapter.LastNonEmptyLine(pane)) {
			_ = sessioncmd.SendEscape(sess)
		}
		_ = sessioncmd.ClearCurrentCommandLine(sess)
	}
	return fmt.Errorf("%w: %v", corerr.ErrDeliveryFailed, lastErr)
}

// SendMessageToAgent runs a single delivery attempt per the algorithm: fix
// alternate modes, wait for prompt, write the payload, commit with retried
// Enter, and fall back to a screen check if the stream signal was
// ambiguous.
func (e *Engine) SendMessageToAgent(sess Session, text string, runtimeType agentmodel.RuntimeType) error {
	if text == "" {
		return fmt.Errorf("%w: text is required", corerr.ErrInvalidArgument)
	}

	deadline := time.Now().Add(e.cfg.PromptDetectionTimeout())

	// Step 1: pre-send mode fix for Gemini's alternate shell mode.
	if runtimeType == agentmodel.RuntimeGeminiCLI {
		if err := e.fixShellMode(sess, deadline); err != nil {
			return err
		}
	}

	ring := newByteRingBuffer(e.cfg.RingBufferBytes)
	unsubscribe := sess.OnData(func(data []byte) { ring.append(data) })
	defer unsubscribe()

	// Step 2/3: prompt-ready check, else event-driven wait on the stream.
	if !runtimeadapter.AtPrompt(runtimeadapter.LastNonEmptyLine(sess.CapturePane(5))) {
		if !e.waitForPromptStream(ring, deadline) {
			return fmt.Errorf("%w: prompt not observed before timeout", corerr.ErrDeliveryFailed)
		}
	}

	// Step 4: write the payload.
	if err := sess.Write([]byte(text)); err != nil {
		return fmt.Errorf("delivery: write payload: %w", err)
	}
	offsetSend := ring.len()

	// Step 5: commit with retried Enter.
	processingDetected, enterSent := e.commitWithRetries(sess, ring, offsetSend, text, deadline)
	if processingDetected {
		return nil
	}

	// Step 6: stuck-at-prompt fallback.
	if e.checkStuck(sess, text) {
		_ = sessioncmd.ClearCurrentCommandLine(sess)
		return fmt.Errorf("%w", corerr.ErrStuck)
	}

	// Step 7: no decisive signal. Accept iff at least one Enter was
	// actually sent.
	if !enterSent {
		return fmt.Errorf("%w: timed out with no Enter sent", corerr.ErrDeliveryFailed)
	}
	return nil
}

// fixShellMode sends Escape up to 3 times to leave Gemini's "!" shell mode,
// re-snapshotting after each attempt.
func (e *Engine) fixShellMode(sess Session, deadline time.Time) error {
	const maxEscapes = 3
	for i := 0; i < maxEscapes; i++ {
		pane := sess.CapturePane(5)
		if !runtimeadapter.ShellMode.MatchString(pane) {
			return nil
		}
		if time.Now().After(deadline) {
			break
		}
		_ = sessioncmd.SendEscape(sess)
		time.Sleep(200 * time.Millisecond)
	}
	if runtimeadapter.ShellMode.MatchString(sess.CapturePane(5)) {
		return fmt.Errorf("%w: stuck in shell mode", corerr.ErrDeliveryFailed)
	}
	return nil
}

// waitForPromptStream blocks until the ring buffer matches PromptStream or
// the deadline passes.
func (e *Engine) waitForPromptStream(ring *byteRingBuffer, deadline time.Time) bool {
	const pollInterval = 50 * time.Millisecond
	for {
		if runtimeadapter.PromptStream.Match(ring.bytes()) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// commitWithRetries schedules up to MaxEnterRetries Enter presses and, in
// parallel, polls the stream for a processing indicator, returning true the
// moment one is observed in the bytes written since offsetSend. The two
// loops run as errgroup goroutines sharing one cancellable context so
// whichever side resolves first (a match, or the retry budget/deadline
// running out) stops the other immediately instead of waiting out its own
// remaining sleep. The second result reports whether at least one Enter was
// sent.
func (e *Engine) commitWithRetries(sess Session, ring *byteRingBuffer, offsetSend int, text string, deadline time.Time) (bool, bool) {
	maxRetries := e.cfg.MaxEnterRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	isMultiline := strings.Contains(text, "\n")
	if isMultiline {
		time.Sleep(e.cfg.PasteCheckDelay())
		if runtimeadapter.PasteIndicator.Match(ring.since(offsetSend)) {
			e.log.Debug("bracketed paste indicator observed, continuing unchanged")
		}
	} else {
		time.Sleep(e.cfg.InitialMessageDelay())
	}

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	detected := make(chan struct{})
	enterSent := false
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Releases the watcher goroutine below the moment retries are
		// exhausted, so commitWithRetries doesn't block out to the full
		// deadline when no processing indicator ever shows up.
		defer cancel()
		for i := 0; i < maxRetries; i++ {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			_ = sessioncmd.SendEnter(sess)
			enterSent = true
			if i == maxRetries-1 {
				return nil
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-time.After(e.cfg.EnterRetryDelay()):
			}
		}
		return nil
	})

	g.Go(func() error {
		const pollInterval = 50 * time.Millisecond
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			if e.matchesProcessing(ring.since(offsetSend)) {
				close(detected)
				cancel()
				return nil
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			}
		}
	})

	_ = g.Wait()

	select {
	case <-detected:
		return true, enterSent
	default:
		return false, enterSent
	}
}

func (e *Engine) matchesProcessing(data []byte) bool {
	for _, re := range runtimeadapter.ProcessingIndicators {
		if re.Match(data) {
			return true
		}
	}
	return false
}

// checkStuck takes a fresh snapshot and reports whether the typed text is
// still verbatim at the tail, declaring the message stuck.
func (e *Engine) checkStuck(sess Session, text string) bool {
	needle := stuckNeedle(text)
	if needle == "" {
		return false
	}
	tail := normalizeWhitespace(sess.CapturePane(5))
	return strings.Contains(tail, needle)
}

// stuckNeedle normalizes text's whitespace and truncates to its first 20
// characters: long messages may wrap or scroll partially out of view, so
// matching on a stable prefix is more robust than requiring the exact
// verbatim text to still be visible.
func stuckNeedle(text string) string {
	needle := normalizeWhitespace(text)
	if len(needle) > 20 {
		needle = needle[:20]
	}
	return needle
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
