package main

import (
	"math/rand"
	"time"
)

// processingLines are canned spinner/status lines matched by
// runtimeadapter.ProcessingIndicators, so a real Delivery Engine polling this
// process's pane sees the same "still working" chrome a real CLI shows.
var processingLines = []string{
	"✻ Thinking…  (esc to interrupt)",
	"● Working… (ctrl+c to interrupt)",
	"• 12s · esc to interrupt",
	"◦ 4s · ctrl+c to interrupt",
	"analyzing request…",
}

// replies are canned responses for whatever the agent was asked to do. The
// exact content doesn't matter to the adapter; only the prompt-return
// transition does.
var replies = []string{
	"Done. I made the requested change.",
	"I looked at the file and didn't find an issue there.",
	"Applied the edit and reran the checks; looks good.",
	"Here's a summary of what I found.",
}

func processingLine() string {
	return processingLines[rand.Intn(len(processingLines))]
}

func replyFor(prompt string) string {
	if prompt == "" {
		return replies[0]
	}
	return replies[len(prompt)%len(replies)]
}

func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
