// Package app wires all Kakehashi subsystems and implements the turn loop:
// user text → LLM → tool calls → reply.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	spec "github.com/bdobrica/Kakehashi/common/spec/manifest"
	"github.com/bdobrica/Kakehashi/common/trace"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/catalog"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/invoker"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/llm"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/manifest"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/observability"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/registry"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/session"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/store"
)

const defaultMaxToolRounds = 10

// Config holds the application configuration. Values are typically loaded
// from environment variables by cmd/kakehashi/main.go.
type Config struct {
	// ManifestPath is the path to the host manifest YAML.
	ManifestPath string

	// DatabasePath is the optional SQLite journal path. Empty disables the
	// journal.
	DatabasePath string

	// LLM holds the LLM provider settings.
	LLM llm.OpenAIConfig
}

// App is the assembled host: manifest, registry, catalog, invoker, session.
type App struct {
	mcfg     *spec.Config
	provider llm.Provider
	dial     registry.Dialer

	reg     *registry.Registry
	cat     *catalog.Catalog
	inv     *invoker.Invoker
	state   *session.State
	journal *store.Store
}

// New loads the manifest and prepares the app. Connections are not opened
// until Start.
func New(cfg Config) (*App, error) {
	ldr := manifest.New()
	if err := ldr.LoadFile(cfg.ManifestPath); err != nil {
		return nil, err
	}

	a := &App{
		mcfg:     ldr.Config(),
		provider: llm.NewOpenAI(cfg.LLM),
		state:    session.New(),
	}

	httpTimeout := 20 * time.Second
	if s := a.mcfg.Limits.HTTPTimeoutSeconds; s > 0 {
		httpTimeout = time.Duration(s) * time.Second
	}
	a.dial = registry.Dial(httpTimeout)

	if cfg.DatabasePath != "" {
		journal, err := store.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = journal
	}
	return a, nil
}

// newForTest assembles an app around injected collaborators.
func newForTest(mcfg *spec.Config, provider llm.Provider, dial registry.Dialer) *App {
	return &App{
		mcfg:     mcfg,
		provider: provider,
		dial:     dial,
		state:    session.New(),
	}
}

// Start connects to every configured server, builds the tool catalog, and
// reports how much of the fleet came up. It fails only when the manifest
// yields no usable endpoints at all.
func (a *App) Start(ctx context.Context) error {
	cfg := a.mcfg

	endpoints, err := cfg.Endpoints()
	if err != nil {
		return fmt.Errorf("manifest endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("manifest configures no servers")
	}

	a.reg = registry.Connect(ctx, cfg.Metadata.Name, endpoints, a.dial)
	live := a.reg.Live()
	slog.Info("registry ready", "servers", len(endpoints), "live", len(live))
	if len(live) == 0 {
		a.reg.Close()
		return fmt.Errorf("no tool server reachable")
	}

	a.cat = catalog.Build(a.reg, cfg.EffectiveOverrides())
	a.inv = invoker.New(a.cat, a.state, cfg.EffectiveRepairs(), cfg.EffectiveCacheables())
	return nil
}

// Reset clears the conversation and its journal rows; tool server
// connections stay up.
func (a *App) Reset() {
	old := a.state.ID()
	a.state.Reset()
	if a.journal != nil {
		if err := a.journal.ClearSession(old); err != nil {
			slog.Debug("journal clear failed", "err", err)
		}
	}
	slog.Info("session reset", "session", a.state.ID())
}

// Close shuts down the registry and the journal.
func (a *App) Close() {
	if a.reg != nil {
		a.reg.Close()
	}
	if a.journal != nil {
		a.journal.Close()
	}
}

// Ask runs one full user turn: the text is appended to the transcript, the
// model is called until it stops requesting tools, and the terminal assistant
// text is returned. Tool failures are fed back to the model as conversation;
// only LLM failures and context cancellation surface as errors.
func (a *App) Ask(ctx context.Context, userText string) (string, error) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	traceID := trace.FromContext(ctx)
	log := observability.WithTrace(ctx)

	var turnID int64
	if a.journal != nil {
		id, err := a.journal.LogTurn(traceID, a.state.ID(), userText)
		if err != nil {
			log.Warn("could not log turn", "err", err)
		} else {
			turnID = id
		}
	}

	reply, toolCalls, err := a.runTurn(ctx, turnID, userText)

	if a.journal != nil && turnID != 0 {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		if jerr := a.journal.FinishTurn(turnID, toolCalls, reply, errMsg); jerr != nil {
			log.Warn("could not finish turn", "err", jerr)
		}
	}
	return reply, err
}

// runTurn executes the turn loop: prompt → LLM → tool calls → response.
func (a *App) runTurn(ctx context.Context, turnID int64, userText string) (string, int, error) {
	cfg := a.mcfg
	log := observability.WithTrace(ctx)

	if len(a.state.Transcript()) == 0 {
		a.state.Append(llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt(cfg)})
	}
	a.state.Append(llm.Message{Role: llm.RoleUser, Content: userText})

	maxRounds := cfg.Limits.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}

	totalToolCalls := 0
	for round := 0; round < maxRounds; round++ {
		resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
			Model:     cfg.Persona.Model,
			Messages:  a.state.Transcript(),
			Tools:     a.cat.Definitions(),
			MaxTokens: cfg.Limits.MaxTokensPerRequest,
		})
		if err != nil {
			return "", totalToolCalls, fmt.Errorf("LLM call failed: %w", err)
		}

		a.state.Append(resp.Message)

		// Drive on the presence of requested calls, not on finish_reason:
		// some backends report "stop" even when the reply asks for tools.
		if len(resp.Message.ToolCalls) == 0 {
			return resp.Message.Content, totalToolCalls, nil
		}

		log.Debug("tool round", "round", round+1, "calls", len(resp.Message.ToolCalls))

		// Calls run strictly in the order requested: a later call may depend
		// on an earlier call's result.
		for _, tc := range resp.Message.ToolCalls {
			totalToolCalls++
			msg, err := a.inv.Invoke(ctx, tc)
			if err != nil {
				return "", totalToolCalls, err
			}
			a.state.Append(msg)
			a.journalToolCall(turnID, tc, msg)
		}
	}

	return "", totalToolCalls, fmt.Errorf("exceeded maximum tool call rounds (%d)", maxRounds)
}

func (a *App) journalToolCall(turnID int64, tc llm.ToolCall, msg llm.Message) {
	if a.journal == nil || turnID == 0 {
		return
	}
	server := ""
	if entry, _, err := a.cat.Resolve(tc.Function.Name); err == nil {
		server = entry.Endpoint.Name
	}
	if err := a.journal.LogToolCall(turnID, server, tc.Function.Name, tc.Function.Arguments, msg.Content, ""); err != nil {
		slog.Debug("journal write failed", "err", err)
	}
}

// systemPrompt builds the system message from the persona, falling back to a
// built-in tool-calling prompt.
func (a *App) systemPrompt(cfg *spec.Config) string {
	if cfg.Persona.SystemPrompt != "" {
		return cfg.Persona.SystemPrompt
	}
	return fmt.Sprintf(
		"You are %s, an assistant with access to external tools. "+
			"Use the provided tools to answer the user's questions; call tools "+
			"with JSON arguments that match their schemas exactly. "+
			"Current time: %s.",
		cfg.Metadata.Name, time.Now().Format(time.RFC1123))
}
