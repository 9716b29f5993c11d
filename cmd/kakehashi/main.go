// Kakehashi is a multi-server MCP host: it connects a chat LLM to the tools
// advertised by a fleet of MCP servers and runs a read-eval loop on stdin.
//
// All configuration is loaded from environment variables. The host reads the
// manifest, connects to every configured tool server, and then answers each
// line typed on stdin with the model's final text. Typing "reset" clears the
// conversation; EOF or an interrupt exits.
//
// Required environment variables:
//
//	KAKEHASHI_MANIFEST    - path to the host manifest YAML
//
// Optional environment variables:
//
//	KAKEHASHI_DB_PATH     - path to the SQLite turn journal (default: none)
//	LLM_API_KEY           - API key for the LLM provider
//	LLM_BASE_URL          - override LLM API base URL (e.g. for Ollama)
//	LLM_MODEL             - model name (default "gpt-4o-mini"); the manifest
//	                        persona.model wins when set
//	LOG_LEVEL             - "debug", "info", "warn", "error" (default: "info")
//	LOG_FORMAT            - "text" or "json" (default: "text")
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bdobrica/Kakehashi/common/version"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/app"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/llm"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/observability"
)

func main() {
	observability.Setup(envOr("LOG_LEVEL", "info"), envOr("LOG_FORMAT", "text"))
	slog.Info("starting kakehashi", "version", version.Info())

	cfg := app.Config{
		ManifestPath: requireEnv("KAKEHASHI_MANIFEST"),
		DatabasePath: os.Getenv("KAKEHASHI_DB_PATH"),
		LLM: llm.OpenAIConfig{
			APIKey:  os.Getenv("LLM_API_KEY"),
			BaseURL: os.Getenv("LLM_BASE_URL"),
			Model:   envOr("LLM_MODEL", "gpt-4o-mini"),
		},
	}

	host, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize", "err", err)
		os.Exit(1)
	}
	defer host.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := host.Start(ctx); err != nil {
		slog.Error("failed to start", "err", err)
		os.Exit(1)
	}

	if err := repl(ctx, host); err != nil {
		slog.Error("exited with error", "err", err)
		os.Exit(1)
	}
}

// repl reads one user turn per line from stdin and prints the model's reply
// on stdout. Logs go to stderr so the reply stream stays clean.
func repl(ctx context.Context, host *app.App) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("kakehashi ready. Type a message, \"reset\" to clear the conversation, Ctrl-D to quit.")

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "reset" {
			host.Reset()
			fmt.Println("(conversation cleared)")
			continue
		}

		reply, err := host.Ask(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Println(strings.TrimSpace(reply))
	}
	return scanner.Err()
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "fatal: required environment variable %q is not set\n", key)
		os.Exit(1)
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
