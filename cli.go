package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/text2sql/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/text2sql/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/text2sql/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/text2sql/pkg/audit"
	"github.com/ekaya-inc/text2sql/pkg/catalog"
	"github.com/ekaya-inc/text2sql/pkg/config"
	"github.com/ekaya-inc/text2sql/pkg/dictionary"
	"github.com/ekaya-inc/text2sql/pkg/llm"
	"github.com/ekaya-inc/text2sql/pkg/logging"
	"github.com/ekaya-inc/text2sql/pkg/models"
	"github.com/ekaya-inc/text2sql/pkg/services"
)

// newApp creates the CLI application with all commands.
func newApp() *cli.App {
	return &cli.App{
		Name:    "text2sql",
		Usage:   "Translate business questions into validated SQL",
		Version: Version,
		Commands: []*cli.Command{
			askCmd(),
			validateCmd(),
			doctorCmd(),
		},
	}
}

// app bundles the composed pipeline with the resources it owns.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	pipeline  services.QueryPipeline
	explainer datasource.Explainer
}

// buildApp is the composition root: config, knowledge files, model client,
// optional sandbox, and the pipeline stages wired in dependency order.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(Version)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		return nil, err
	}

	snap, err := catalog.LoadSnapshot(cfg.Knowledge.CatalogPath)
	if err != nil {
		return nil, err
	}
	dict, err := dictionary.Load(cfg.Knowledge.DictionaryPath)
	if err != nil {
		return nil, err
	}
	domains, err := catalog.LoadDomains(cfg.Knowledge.DomainsPath)
	if err != nil {
		return nil, err
	}
	rules, err := catalog.LoadRules(cfg.Knowledge.RulesPath)
	if err != nil {
		return nil, err
	}
	examples, err := catalog.LoadExamples(cfg.Knowledge.ExamplesPath)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewFromConfig(&cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	var explainer datasource.Explainer
	if cfg.Sandbox.Type != "" {
		explainer, err = datasource.NewExplainer(ctx, &cfg.Sandbox)
		if err != nil {
			return nil, fmt.Errorf("failed to connect sandbox: %w", err)
		}
	}

	pipeline := services.NewQueryPipeline(
		services.NewBusinessContextAnalyzer(snap, dict, domains, cfg, time.Now, logger),
		services.NewSchemaRetriever(snap, dict, client, cfg.LLM.EmbeddingModel, &cfg.Retrieval, logger),
		services.NewContextAssembler(dict, logger),
		services.NewSQLGenerator(client, cfg.Sandbox.Type, float64(cfg.LLM.Temperature), logger),
		explainer,
		audit.NewSecurityAuditor(logger),
		audit.NewLogTraceWriter(logger),
		rules,
		examples,
		cfg,
		logger,
	)

	return &app{cfg: cfg, logger: logger, pipeline: pipeline, explainer: explainer}, nil
}

func (a *app) close() {
	if a.explainer != nil {
		_ = a.explainer.Close()
	}
	_ = a.logger.Sync()
}

// askCmd creates the ask command.
func askCmd() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Translate a business question into validated SQL",
		ArgsUsage: "\"question\"",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Value: "cli", Usage: "User ID recorded on the query trace"},
			&cli.IntFlag{Name: "budget", Usage: "Prompt token budget override"},
			&cli.BoolFlag{Name: "json", Usage: "Print the full pipeline result as JSON"},
		},
		Action: func(c *cli.Context) error {
			question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if question == "" {
				return errors.New("usage: text2sql ask \"<question>\"")
			}

			a, err := buildApp(c.Context)
			if err != nil {
				return err
			}
			defer a.close()

			var budget *services.BudgetConfig
			if n := c.Int("budget"); n > 0 {
				budget = &services.BudgetConfig{MaxTotalTokens: n}
			}

			result, runErr := a.pipeline.ProcessQuery(c.Context, question, c.String("user"), budget)
			if c.Bool("json") {
				if err := printJSON(result); err != nil {
					return err
				}
				return runErr
			}
			if runErr != nil {
				printIssues(result.Issues)
				return fmt.Errorf("translation %s: %w", result.Status, runErr)
			}

			fmt.Println(result.SQL.Text)
			fmt.Fprintf(os.Stderr, "-- confidence %.2f, attempt %d, %d prompt + %d completion tokens\n",
				result.Confidence, result.SQL.Attempt, result.Usage.PromptTokens, result.Usage.CompletionTokens)
			printIssues(result.Issues)
			return nil
		},
	}
}

// validateCmd creates the validate command.
func validateCmd() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Run the validation layers over hand-written SQL (argument or stdin)",
		ArgsUsage: "\"SQL\"",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "question", Aliases: []string{"q"}, Required: true, Usage: "Business question the SQL is meant to answer"},
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Value: "cli", Usage: "User ID recorded on audit events"},
		},
		Action: func(c *cli.Context) error {
			sqlText := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if sqlText == "" {
				var err error
				if sqlText, err = readStdin(); err != nil {
					return err
				}
			}
			if sqlText == "" {
				return errors.New("no SQL given: pass it as an argument or pipe it via stdin")
			}

			a, err := buildApp(c.Context)
			if err != nil {
				return err
			}
			defer a.close()

			results, err := a.pipeline.ValidateSQL(c.Context, c.String("question"), sqlText, c.String("user"))
			if err != nil {
				return err
			}

			failed := false
			for _, result := range results {
				status := "pass"
				switch {
				case !result.Passed:
					status = "FAIL"
					failed = true
				case result.Skipped:
					status = "skip"
				}
				fmt.Printf("%-4s  %-18s score %.2f\n", status, result.Layer, result.Score)
				printIssues(result.Issues)
			}
			if failed {
				return errors.New("validation failed")
			}
			return nil
		},
	}
}

// doctorCmd creates the doctor command. It checks each dependency in the
// order the pipeline needs them and keeps going after failures so one run
// reports everything that is broken.
func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Check configuration, knowledge files, model and sandbox connectivity",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "skip-llm", Usage: "Skip live model calls"},
		},
		Action: func(c *cli.Context) error {
			healthy := true

			cfg, err := config.Load(Version)
			if err != nil {
				fmt.Printf("config      FAIL  %v\n", err)
				return errors.New("doctor found problems")
			}
			fmt.Printf("config      ok    env=%s provider=%s model=%s\n", cfg.Env, cfg.LLM.Provider, cfg.LLM.Model)

			if snap, err := catalog.LoadSnapshot(cfg.Knowledge.CatalogPath); err != nil {
				fmt.Printf("catalog     FAIL  %v\n", err)
				healthy = false
			} else {
				fmt.Printf("catalog     ok    %d tables (version %s)\n", snap.TableCount(), snap.Version())
			}

			if dict, err := dictionary.Load(cfg.Knowledge.DictionaryPath); err != nil {
				fmt.Printf("dictionary  FAIL  %v\n", err)
				healthy = false
			} else {
				fmt.Printf("dictionary  ok    %d terms\n", dict.Len())
			}

			domains, domainsErr := catalog.LoadDomains(cfg.Knowledge.DomainsPath)
			rules, rulesErr := catalog.LoadRules(cfg.Knowledge.RulesPath)
			examples, examplesErr := catalog.LoadExamples(cfg.Knowledge.ExamplesPath)
			if err := errors.Join(domainsErr, rulesErr, examplesErr); err != nil {
				fmt.Printf("knowledge   FAIL  %v\n", err)
				healthy = false
			} else {
				fmt.Printf("knowledge   ok    %d domains, %d rules, %d examples\n", len(domains), len(rules), len(examples))
			}

			engines := make([]string, 0, 2)
			for _, info := range datasource.RegisteredEngines() {
				engines = append(engines, info.Engine)
			}
			if cfg.Sandbox.Type == "" {
				fmt.Printf("sandbox     --    not configured, dry-run layer will be skipped (available: %s)\n",
					strings.Join(engines, ", "))
			} else if ok := checkSandbox(c.Context, cfg); !ok {
				healthy = false
			}

			if c.Bool("skip-llm") {
				fmt.Printf("llm         --    skipped\n")
			} else if ok := checkLLM(c.Context, cfg); !ok {
				healthy = false
			}

			if !healthy {
				return errors.New("doctor found problems")
			}
			return nil
		},
	}
}

func checkSandbox(ctx context.Context, cfg *config.Config) bool {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	explainer, err := datasource.NewExplainer(ctx, &cfg.Sandbox)
	if err != nil {
		fmt.Printf("sandbox     FAIL  %v\n", err)
		return false
	}
	defer func() { _ = explainer.Close() }()

	if err := explainer.TestConnection(ctx); err != nil {
		fmt.Printf("sandbox     FAIL  %s: %v\n", explainer.Engine(), err)
		return false
	}
	fmt.Printf("sandbox     ok    %s %s@%s:%d/%s\n",
		explainer.Engine(), cfg.Sandbox.User, cfg.Sandbox.Host, cfg.Sandbox.Port, cfg.Sandbox.Database)
	return true
}

func checkLLM(ctx context.Context, cfg *config.Config) bool {
	client, err := llm.NewFromConfig(&cfg.LLM, zap.NewNop())
	if err != nil {
		fmt.Printf("llm         FAIL  %v\n", err)
		return false
	}

	result := llm.NewConnectionTester().Test(ctx, client, cfg.LLM.EmbeddingModel)
	if !result.Success {
		fmt.Printf("llm         FAIL  %s\n", result.Message)
		return false
	}
	fmt.Printf("llm         ok    %s\n", result.LLMMessage)
	if result.EmbeddingMessage != "" {
		status := "ok   "
		if !result.EmbeddingSuccess {
			// Retrieval degrades to lexical strategies without embeddings;
			// report it without failing the whole check.
			status = "warn "
		}
		fmt.Printf("embedding   %s %s\n", status, result.EmbeddingMessage)
	}
	return true
}

func printIssues(issues []models.ValidationIssue) {
	for _, issue := range issues {
		fmt.Fprintf(os.Stderr, "      [%s] %s: %s\n", issue.Severity, issue.Code, issue.Message)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
