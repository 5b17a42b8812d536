// Command loom is the CLI for the DocLoom knowledge-graph engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/DocLoom/internal/audit"
	"github.com/untoldecay/DocLoom/internal/cache"
	"github.com/untoldecay/DocLoom/internal/config"
	"github.com/untoldecay/DocLoom/internal/debug"
	"github.com/untoldecay/DocLoom/internal/llm"
	"github.com/untoldecay/DocLoom/internal/storage/sqlite"
)

// Exit codes: 0 success, 1 expected error, 2 parser error.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var (
	jsonOutput bool
	forceFlag  bool

	storeOnce sync.Once
	storeInst *sqlite.Store
	storeErr  error

	cacheManager = cache.NewManager()
	accessBuffer *cache.AccessBuffer
	auditLog     *audit.Log
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Personal knowledge graph for markdown documents",
	Long: `DocLoom ingests markdown documents into a searchable store, discovers
typed links between them, clusters them into topics, and synthesizes
wiki articles from each topic via an LLM.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		if db, _ := cmd.Flags().GetString("db"); db != "" {
			config.Set("db", db)
		}
		if cmd.Flags().Changed("json") {
			config.Set("json", jsonOutput)
		}
		jsonOutput = config.GetBool("json")
		if config.GetBool("debug") || os.Getenv("LOOM_DEBUG") == "1" {
			if err := debug.Initialize(config.DataDir()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: debug log unavailable: %v\n", err)
			}
		}
		auditLog = audit.Open(config.DataDir())
		if !config.GetBool("cache.enabled") {
			cacheManager.SetEnabled(false)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON output")
	rootCmd.PersistentFlags().BoolVar(&forceFlag, "force", false, "bypass confirmation prompts")
	rootCmd.PersistentFlags().String("db", "", "database path (default .loom/loom.db)")
	_ = rootCmd.PersistentFlags().MarkHidden("db")
}

// getStore lazily opens the process store and wires the access buffer.
func getStore(ctx context.Context) (*sqlite.Store, error) {
	storeOnce.Do(func() {
		storeInst, storeErr = sqlite.Open(ctx, config.DBPath())
		if storeErr == nil {
			accessBuffer = cache.NewAccessBuffer(storeInst.FlushAccessCounts, 50, 30*time.Second)
		}
	})
	return storeInst, storeErr
}

// shutdown flushes buffered access counts and clears caches.
func shutdown() {
	if accessBuffer != nil {
		if err := accessBuffer.Flush(context.Background()); err != nil {
			debug.Logf("access buffer flush on exit failed: %v", err)
		}
	}
	cacheManager.ClearAll()
	if storeInst != nil {
		_ = storeInst.Close()
	}
	debug.Close()
}

// newLLMClient builds the configured LLM backend: subprocess CLI first,
// API fallback when a key is present.
func newLLMClient(model string) (llm.Client, error) {
	if model == "" {
		model = config.GetString("wiki.model")
	}
	cli, err := llm.NewCLIClient(config.GetString("llm.cli"), model, config.LLMTimeout())
	if err == nil {
		return cli, nil
	}
	if api, apiErr := llm.NewAPIClient(config.GetString("llm.api-key"), model); apiErr == nil {
		return api, nil
	}
	return nil, err
}

// recordLLM is the audit hook attached to LLM-backed engines.
func recordLLM(op, model string, resp *llm.Response, dur time.Duration, err error) {
	entry := audit.Entry{Operation: op, Model: model, DurationMS: dur.Milliseconds()}
	if resp != nil {
		entry.OutputChars = len(resp.Text)
		entry.InputTokens = resp.InputTokens
		entry.OutputTokens = resp.OutputTokens
		entry.CostUSD = llm.EstimateCost(resp.Model, resp.InputTokens, resp.OutputTokens)
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if _, aerr := auditLog.Record(entry); aerr != nil {
		debug.Logf("audit record failed: %v", aerr)
	}
}

// outputJSON writes one well-formed JSON object to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail prints an expected error and exits 1. JSON mode emits {"error": ...}.
func fail(err error) {
	if jsonOutput {
		_ = outputJSON(map[string]string{"error": err.Error()})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	shutdown()
	os.Exit(exitError)
}

// confirm prompts y/N on stdin unless --force.
func confirm(prompt string) bool {
	if forceFlag {
		return true
	}
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	var answer string
	_, _ = fmt.Scanln(&answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func main() {
	err := rootCmd.Execute()
	shutdown()
	if err == nil {
		os.Exit(exitOK)
	}
	// Cobra reports unknown commands and flag mistakes as parse errors.
	msg := err.Error()
	if strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") || strings.HasPrefix(msg, "invalid argument") ||
		strings.Contains(msg, "accepts ") {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	if jsonOutput {
		_ = outputJSON(map[string]string{"error": msg})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitError)
}
