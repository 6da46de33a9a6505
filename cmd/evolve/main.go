// Command evolve drives the Orchestration Agent (C15) from the CLI: it
// loads configuration, wires the real collaborators (Gemini or a fake
// provider, sqlite-vec or in-memory vector store), and executes a single
// evolution objective against a project directory.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codenerd/internal/budget"
	"codenerd/internal/config"
	"codenerd/internal/llm"
	"codenerd/internal/llm/fake"
	"codenerd/internal/llm/genai"
	"codenerd/internal/logging"
	"codenerd/internal/orchestrator"
	"codenerd/internal/project"
	"codenerd/internal/sandbox"
	"codenerd/internal/sandbox/goparse"
	"codenerd/internal/sandbox/treesitter"
	"codenerd/internal/tokencost"
	"codenerd/internal/vectorstore"
	"codenerd/internal/vectorstore/genaiembed"
	"codenerd/internal/vectorstore/hashembed"
	"codenerd/internal/vectorstore/memstore"
	"codenerd/internal/vectorstore/sqlitevec"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Autonomous software-evolution orchestration engine",
	Long: `evolve plans, executes, validates, and self-heals a single code
change against a project, end to end, via the Orchestration Agent.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Configure(verbose)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one evolution objective against a project",
	RunE:  runEvolve,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".evolve/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	runCmd.Flags().String("task", "", "Natural language description of the change to make (required)")
	runCmd.Flags().String("project", ".", "Path to the project directory")
	runCmd.Flags().String("language", "go", "Primary language of the project")
	runCmd.Flags().StringArray("constraint", nil, "A constraint the change must satisfy (repeatable)")
	runCmd.Flags().StringArray("quality-gate", nil, "A named quality gate the change must satisfy (repeatable)")
	_ = runCmd.MarkFlagRequired("task")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runEvolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nevolve: cancelled")
		cancel()
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("evolve: load config: %w", err)
	}

	task, _ := cmd.Flags().GetString("task")
	projectPath, _ := cmd.Flags().GetString("project")
	language, _ := cmd.Flags().GetString("language")
	constraints, _ := cmd.Flags().GetStringArray("constraint")
	gates, _ := cmd.Flags().GetStringArray("quality-gate")
	if projectPath != "" {
		cfg.Execution.ProjectPath = projectPath
	}

	orch, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("evolve: build orchestrator: %w", err)
	}

	fs := project.NewOSFileSystem(cfg.Execution.ProjectPath)
	obj := orchestrator.Objective{
		Task:         task,
		ProjectPath:  cfg.Execution.ProjectPath,
		Language:     language,
		Constraints:  constraints,
		QualityGates: gates,
	}

	result, err := orch.Execute(ctx, obj, fs)
	if err != nil {
		return fmt.Errorf("evolve: execute: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("evolve: encode result: %w", err)
	}

	if result.Decision != "approve" {
		os.Exit(1)
	}
	return nil
}

// buildOrchestrator wires cfg into a fully constructed Orchestrator. Each
// collaborator is chosen by configuration: llm provider "fake" gives one
// deterministic fake handle for every tier (any other provider builds genai
// handles), embedding provider "hash" gives hashembed (else genaiembed), and
// vector-store backend "memory" gives memstore (else sqlitevec).
func buildOrchestrator(ctx context.Context, cfg *config.Config) (*orchestrator.Orchestrator, error) {
	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(cfg, embedder.Dimensions())
	if err != nil {
		return nil, err
	}

	checker := sandbox.NewChain(goparse.New(), treesitter.New())

	priceTable := cfg.Budget.PriceTable
	if priceTable == nil {
		priceTable = map[string]float64{}
	}
	estimator := tokencost.NewEstimator(priceTable)

	var approver budget.Approver = cliApprover{threshold: cfg.Budget.AutoApproveThreshold}
	manager := budget.NewManager(estimator, approver, cfg.Budget.SessionBudgetUSD)

	orch := orchestrator.New(registry, store, embedder, checker, nil, nil, estimator, manager)
	orch.Config = orchestrator.Config{
		WorkerPoolSize: cfg.Execution.WorkerPoolSize,
		PhaseTimeout:   cfg.GetPhaseTimeout(),
		LLMCallTimeout: cfg.GetLLMCallTimeout(),
	}
	return orch, nil
}

func buildRegistry(ctx context.Context, cfg *config.Config) (llm.ModelRegistry, error) {
	if cfg.LLM.Provider == "fake" {
		handle := fake.New(cfg.LLM.HighestModel, "[]")
		return llm.NewStaticRegistry(map[budget.ModelTier]llm.ModelHandle{
			budget.TierHighest: handle,
			budget.TierMiddle:  handle,
			budget.TierSmall:   handle,
			budget.TierXS:      handle,
		}), nil
	}

	handles := map[budget.ModelTier]llm.ModelHandle{}
	tierModels := map[budget.ModelTier]string{
		budget.TierHighest: cfg.LLM.HighestModel,
		budget.TierMiddle:  cfg.LLM.MiddleModel,
		budget.TierSmall:   cfg.LLM.SmallModel,
		budget.TierXS:      cfg.LLM.XSModel,
	}
	for tier, modelID := range tierModels {
		h, err := genai.New(ctx, cfg.LLM.APIKey, modelID)
		if err != nil {
			return nil, fmt.Errorf("build registry tier %s: %w", tier, err)
		}
		handles[tier] = h
	}
	return llm.NewStaticRegistry(handles), nil
}

func buildEmbedder(ctx context.Context, cfg *config.Config) (vectorstore.Embedder, error) {
	if cfg.Embedding.Provider == "hash" {
		return hashembed.New(cfg.Embedding.Dimensions), nil
	}
	return genaiembed.New(ctx, cfg.Embedding.APIKey, cfg.Embedding.Model)
}

func buildStore(cfg *config.Config, dim int) (vectorstore.Store, error) {
	if cfg.VectorStore.Backend == "memory" {
		return memstore.New(), nil
	}
	return sqlitevec.Open(cfg.VectorStore.Path, dim)
}

// cliApprover prompts on stdin whenever an estimated cost exceeds the
// auto-approve threshold.
type cliApprover struct {
	threshold float64
}

func (a cliApprover) Approve(description, _ string, estimatedCost float64) bool {
	if estimatedCost <= a.threshold {
		return true
	}
	fmt.Fprintf(os.Stderr, "approve %q (est. $%.4f)? [y/N]: ", description, estimatedCost)
	var reply string
	_, _ = fmt.Scanln(&reply)
	return reply == "y" || reply == "Y"
}
