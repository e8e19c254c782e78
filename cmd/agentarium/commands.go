package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"agentarium/internal/app"
	"agentarium/internal/config"
	"agentarium/internal/logging"
	"agentarium/internal/orchestrator"
	"agentarium/internal/server"
)

type cli struct {
	configFile string
	verbose    bool

	// newApp builds the pipeline; replaced in tests.
	newApp func(cfg *config.Config, logger zerolog.Logger) (*app.App, error)
	stdout io.Writer
	stderr io.Writer
}

func newCLI() *cli {
	return &cli{
		newApp: app.New,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

func (c *cli) rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentarium",
		Short: "Agentarium - research, summarize, write and critique with LLM agents",
		Long: `Agentarium runs a fixed pipeline of language-model agents over a problem statement:
a researcher gathers notes, a summarizer condenses them, a writer drafts an answer and a
critic reviews it. Rejected drafts go back to the writer until the critic approves or the
revision limit is reached.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(c.stdout)
	rootCmd.SetErr(c.stderr)

	rootCmd.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "verbose output")

	runCmd := &cobra.Command{
		Use:   "run [problem]",
		Short: "Run the pipeline on a problem statement",
		Long:  `Run the full pipeline and print the final draft. The problem is taken from the arguments or from --file.`,
		RunE:  c.runPipeline,
	}
	runCmd.Flags().StringP("file", "f", "", "read the problem statement from a file")
	runCmd.Flags().Int("max-revisions", 0, "override the revision limit")
	runCmd.Flags().String("policy", "", "acceptance policy: keyword-match or explicit-flag")
	runCmd.Flags().Bool("json", false, "print the full artifact as JSON")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE:  c.runServe,
	}
	serveCmd.Flags().String("address", "", "listen address, overrides server.address")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  `Manage agentarium configuration files.`,
	}

	configInitCmd := &cobra.Command{
		Use:   "init [filename]",
		Short: "Create a default configuration file",
		Long:  `Generate a default configuration file with all available options.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.runConfigInit,
	}

	configValidateCmd := &cobra.Command{
		Use:   "validate [filename]",
		Short: "Validate a configuration file",
		Long:  `Validate the syntax and values of a configuration file.`,
		Args:  cobra.ExactArgs(1),
		RunE:  c.runConfigValidate,
	}

	configCmd.AddCommand(configInitCmd, configValidateCmd)
	rootCmd.AddCommand(runCmd, serveCmd, configCmd)
	return rootCmd
}

func (c *cli) runPipeline(cmd *cobra.Command, args []string) error {
	problem, err := c.readProblem(cmd, args)
	if err != nil {
		return err
	}

	var opts []orchestrator.RunOption
	if cmd.Flags().Changed("max-revisions") {
		n, _ := cmd.Flags().GetInt("max-revisions")
		if n < 0 || n > config.MaxRevisionsLimit {
			return fmt.Errorf("--max-revisions must be between 0 and %d", config.MaxRevisionsLimit)
		}
		opts = append(opts, orchestrator.RunMaxRevisions(n))
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if policy, _ := cmd.Flags().GetString("policy"); policy != "" {
		cfg.Pipeline.AcceptancePolicy = policy
	}

	logger := c.logger(cfg)
	a, err := c.newApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	artifact, err := a.Orchestrator.Run(ctx, problem, opts...)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(artifact)
	}

	fmt.Fprintln(c.stdout, artifact.Text)
	fmt.Fprintln(c.stdout)
	fmt.Fprintln(c.stdout, "---")
	if artifact.Approved {
		fmt.Fprintln(c.stdout, "Approved: yes")
	} else {
		fmt.Fprintln(c.stdout, "Approved: no (revision limit reached)")
	}
	fmt.Fprintf(c.stdout, "Revisions: %d\n", artifact.Revisions)
	if c.verbose {
		fmt.Fprintf(c.stdout, "Calls: %d\n", artifact.Stats.CallsMade)
		fmt.Fprintf(c.stdout, "Tokens: %d\n", artifact.Stats.Usage.TotalTokens)
		fmt.Fprintf(c.stdout, "Duration: %v\n", artifact.Stats.Duration)
		if artifact.Critique != "" {
			fmt.Fprintf(c.stdout, "Last critique: %s\n", artifact.Critique)
		}
	}
	return nil
}

func (c *cli) readProblem(cmd *cobra.Command, args []string) (string, error) {
	file, _ := cmd.Flags().GetString("file")
	switch {
	case file != "" && len(args) > 0:
		return "", fmt.Errorf("give the problem as arguments or --file, not both")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read problem file: %w", err)
		}
		return string(data), nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	default:
		return "", fmt.Errorf("a problem statement is required")
	}
}

func (c *cli) runServe(cmd *cobra.Command, args []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if addr, _ := cmd.Flags().GetString("address"); addr != "" {
		cfg.Server.Address = addr
	}

	logger := c.logger(cfg)
	a, err := c.newApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.New(a.Orchestrator, cfg, logger).ListenAndServe(ctx)
}

func (c *cli) runConfigInit(cmd *cobra.Command, args []string) error {
	filename := "agentarium.json"
	if len(args) > 0 {
		filename = args[0]
	}

	cfg := config.DefaultConfig()
	if err := cfg.SaveToFile(filename); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Fprintf(c.stdout, "Default configuration saved to: %s\n", filename)
	fmt.Fprintf(c.stdout, "Edit this file to customize your pipeline settings.\n")
	return nil
}

func (c *cli) runConfigValidate(cmd *cobra.Command, args []string) error {
	filename := args[0]

	cfg, err := config.LoadConfigFromFile(filename)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if _, err := app.Templates(cfg.Prompts); err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "Configuration file '%s' is valid!\n", filename)

	if c.verbose {
		fmt.Fprintf(c.stdout, "\nConfiguration details:\n")
		fmt.Fprintln(c.stdout, cfg.String())
	}
	return nil
}

// loadConfig uses --config when given, otherwise the first config file found
// in the working directory, otherwise defaults and environment only.
func (c *cli) loadConfig() (*config.Config, error) {
	if c.configFile != "" {
		return config.LoadConfigFromFile(c.configFile)
	}

	for _, file := range []string{"agentarium.json", "agentarium.yaml", "agentarium.yml"} {
		if _, err := os.Stat(file); err == nil {
			return config.LoadConfigFromFile(file)
		}
	}
	return config.Load("")
}

func (c *cli) logger(cfg *config.Config) zerolog.Logger {
	level := cfg.LogLevel
	if c.verbose {
		level = "debug"
	}
	return logging.New(level, cfg.LogFormat, c.stderr)
}

