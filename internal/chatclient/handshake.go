package chatclient

import (
	"strings"
	"time"
)

// Completion handshake: a complete event carries the full final text, but
// the UI may still be mid-way through a character-reveal animation of the
// previously streamed partial. Finalizing immediately would visually truncate
// the animation, so completion is a two-phase commit: arrive, hold pending,
// commit on an external signal from the animation driver. A timer bounds the
// hold so an unmounted or absent driver cannot leave the turn stuck busy.

// handleComplete resolves a terminal complete event. If the final text does
// not extend the streamed partial (they diverge, a normal case since streamed
// fragments may be reformatted before finalization), the message finalizes
// immediately. Otherwise it is held pending and the full final text is
// published as the streaming buffer so reveal animation can catch up.
func (c *Conversation) handleComplete(text, audioBase64 string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := Message{
		ID:          c.newIDLocked(),
		Role:        RoleAssistant,
		Text:        text,
		AudioBase64: audioBase64,
		CreatedAt:   time.Now(),
	}

	if c.partial == "" || !strings.HasPrefix(text, c.partial) {
		c.finalizeLocked(msg)
		return
	}

	c.pending = &msg
	c.partial = text
	if c.pendingTimer != nil {
		c.pendingTimer.Stop()
	}
	c.pendingTimer = time.AfterFunc(c.finalizeDelay, c.FinalizeComplete)
}

// FinalizeComplete commits a pending completion: the animation driver calls
// it once its reveal has caught up to the full buffered text. Calling it with
// no pending completion is a no-op, so the safety-valve timer and an explicit
// driver call can race harmlessly.
func (c *Conversation) FinalizeComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forceFinalizeLocked()
}

// forceFinalizeLocked commits the pending completion if one exists. Callers
// hold mu.
func (c *Conversation) forceFinalizeLocked() {
	if c.pending == nil {
		return
	}
	msg := *c.pending
	c.finalizeLocked(msg)
}
