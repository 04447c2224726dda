// Command mockagent is a fake claude-code/gemini-cli/codex-cli binary: it
// speaks the terminal chrome the Runtime Adapter looks for (welcome banner,
// prompt glyph, processing spinner, command palette) without shelling out to
// a real coding assistant. It is meant to be exec'd inside a PTY session in
// place of "claude"/"gemini"/"codex", so the Supervisor, Delivery Engine and
// Runtime Adapter can be exercised end to end against a real child process
// and a real pty instead of an in-memory fake.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// sessionID distinguishes one mockagent process from another in logs; PID is
// unique enough since each PTY session spawns its own process.
var sessionID = fmt.Sprintf("mockagent-%d", os.Getpid())

type runtimeProfile struct {
	banner     string
	promptChar string
}

var profiles = map[string]runtimeProfile{
	"claude-code": {
		banner: "╭──────────────────────────────╮\n" +
			"│ ✻ Welcome to Claude Code      │\n" +
			"╰──────────────────────────────╯",
		promptChar: "❯",
	},
	"gemini-cli": {
		banner: "Gemini CLI\n" +
			"Tips for getting started: type a message and press enter.",
		promptChar: ">",
	},
	"codex-cli": {
		banner: "OpenAI Codex CLI\n" +
			"▌ Ask Codex to do anything",
		promptChar: "›",
	},
}

func main() {
	runtimeFlag := flag.String("runtime", "claude-code", "runtime persona to imitate (claude-code, gemini-cli, codex-cli)")
	flag.String("model", "mock-default", "ignored, accepted for command-line compatibility with the real CLIs")
	flag.Parse()

	profile, ok := profiles[*runtimeFlag]
	if !ok {
		fmt.Fprintf(os.Stderr, "mockagent: unknown runtime %q\n", *runtimeFlag)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "mockagent: %s starting as %s\n", sessionID, *runtimeFlag)

	fmt.Println(profile.banner)
	printPrompt(profile)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		handleLine(profile, line)
	}
}

func handleLine(profile runtimeProfile, line string) {
	trimmed := strings.TrimSpace(line)

	switch {
	case trimmed == "":
		printPrompt(profile)
		return
	case trimmed == "/quit" || trimmed == "/exit":
		fmt.Println("goodbye")
		os.Exit(0)
	case trimmed == "/":
		// DetectRuntimeWithCommand's probe: show the palette, stay put. The
		// adapter follows up with an Escape keystroke to dismiss it, which
		// arrives as its own (often empty) line.
		fmt.Println("/help  /clear  /model  /quit  /exit")
		printPrompt(profile)
		return
	case strings.HasPrefix(trimmed, "!"):
		// Gemini CLI's shell-mode escape hatch.
		fmt.Printf("! %s\n", strings.TrimPrefix(trimmed, "!"))
		printPrompt(profile)
		return
	}

	respondTo(profile, trimmed)
}

func respondTo(profile runtimeProfile, prompt string) {
	fmt.Println(processingLine())
	time.Sleep(jitter(200*time.Millisecond, 600*time.Millisecond))

	fmt.Println(replyFor(prompt))
	fmt.Println()
	printPrompt(profile)
}

func printPrompt(profile runtimeProfile) {
	fmt.Printf("%s ", profile.promptChar)
}
