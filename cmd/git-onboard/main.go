package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/1BitCode-Com/git-onboard/internal/config"
	"github.com/1BitCode-Com/git-onboard/internal/git"
	"github.com/1BitCode-Com/git-onboard/internal/interact"
	"github.com/1BitCode-Com/git-onboard/internal/onboard"
	"github.com/1BitCode-Com/git-onboard/internal/recovery"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Version information set by goreleaser.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	logFile   string

	projectPath string
	remoteURL   string
	branch      string
	message     string
	onConflict  string
	dryRun      bool
	assumeYes   bool
)

var rootCmd = &cobra.Command{
	Use:   "git-onboard",
	Short: "Onboard projects into git and recover lost repository metadata",
	Long: `git-onboard initializes a project for git, commits its files and pushes
them to a configured remote. When the project's .git directory has been
deleted it rebuilds the repository first, from the remote where one is
reachable and from the local tree otherwise, so no work is lost.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Recover the repository if needed, then stage, commit and push",
	RunE:  runRun,
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Rebuild missing repository metadata and commit what survived",
	RunE:  runRecover,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report metadata state and remote reachability without changing anything",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("git-onboard %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/git-onboard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "append logs to this rotating file instead of stdout")

	for _, c := range []*cobra.Command{runCmd, recoverCmd} {
		c.Flags().StringVarP(&projectPath, "project", "p", "", "project directory (default is the current directory)")
		c.Flags().StringVar(&remoteURL, "remote", "", "remote repository URL")
		c.Flags().StringVarP(&branch, "branch", "b", "", "branch to push to (default is the remote default branch)")
		c.Flags().StringVarP(&message, "message", "m", "", "commit message")
		c.Flags().StringVar(&onConflict, "on-conflict", "ask", "push conflict handling (ask, merge, force, abort)")
		c.Flags().BoolVar(&dryRun, "dry-run", false, "log planned actions without touching the repository")
		c.Flags().BoolVarP(&assumeYes, "yes", "y", false, "answer yes to confirmation prompts")
	}
	statusCmd.Flags().StringVarP(&projectPath, "project", "p", "", "project directory (default is the current directory)")
	statusCmd.Flags().StringVar(&remoteURL, "remote", "", "remote repository URL")

	rootCmd.AddCommand(runCmd, recoverCmd, statusCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}

	client := git.NewShellClient(cfg.Auth.SSHKeyFile, cfg.Auth.HTTPSTokenFile)
	if err := checkGit(ctx, client); err != nil {
		return err
	}

	resolver, err := conflictResolver()
	if err != nil {
		return err
	}

	rec, err := recovery.NewOrchestrator(cfg, client, resolver, logger, dryRun).Run(ctx)
	if err != nil {
		logger.Error("recovery failed", "error", err)
		return err
	}
	if rec.Outcome != recovery.OutcomeNotApplicable {
		return reportRecovery(logger, rec)
	}

	res, err := onboard.NewEngine(cfg, client, resolver, newInteractor(), logger, dryRun).Run(ctx)
	if err != nil {
		logger.Error("onboarding failed", "error", err)
		return err
	}
	return reportOnboarding(logger, res)
}

func runRecover(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}

	client := git.NewShellClient(cfg.Auth.SSHKeyFile, cfg.Auth.HTTPSTokenFile)
	if err := checkGit(ctx, client); err != nil {
		return err
	}

	resolver, err := conflictResolver()
	if err != nil {
		return err
	}

	res, err := recovery.NewOrchestrator(cfg, client, resolver, logger, dryRun).Run(ctx)
	if err != nil {
		logger.Error("recovery failed", "error", err)
		return err
	}
	if res.Outcome == recovery.OutcomeNotApplicable {
		logger.Info("repository metadata is intact, nothing to recover")
		return nil
	}
	return reportRecovery(logger, res)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}

	client := git.NewShellClient(cfg.Auth.SSHKeyFile, cfg.Auth.HTTPSTokenFile)
	if err := checkGit(ctx, client); err != nil {
		return err
	}

	dir, err := cfg.AbsProjectPath()
	if err != nil {
		return err
	}

	inspector := recovery.NewInspector(client, cfg.Network.Timeout.Std(), logger)
	state, err := inspector.Inspect(dir)
	if err != nil {
		return err
	}

	fmt.Printf("project:  %s\n", dir)
	fmt.Printf("metadata: %s\n", state)
	if cfg.HasRemote() {
		fmt.Printf("remote:   %s (%s)\n", git.Redact(cfg.Remote.URL), inspector.ProbeRemote(ctx, cfg.Remote.URL))
	} else {
		fmt.Println("remote:   none configured")
	}
	return nil
}

// reportRecovery turns a recovery outcome into the process exit status.
// Outcomes that leave work stranded locally fail the command so scripts
// and timers notice.
func reportRecovery(logger *slog.Logger, res *recovery.Result) error {
	if n := len(res.Warnings); n > 0 {
		logger.Warn("some files were skipped", "count", n)
	}
	switch res.Outcome {
	case recovery.OutcomeSuccess:
		logger.Info("recovery complete", "branch", res.TargetBranch, "forced", res.ForcedPush)
		return nil
	case recovery.OutcomeNoOp:
		logger.Info("repository metadata rebuilt, no files needed committing")
		return nil
	case recovery.OutcomeConflictUnresolved:
		return fmt.Errorf("push conflict on branch %q is unresolved; the recovered commit is safe locally, rerun after resolving", res.TargetBranch)
	case recovery.OutcomeRemoteUnreachable:
		return fmt.Errorf("recovered files are committed locally but pushing branch %q failed; check the remote and rerun", res.TargetBranch)
	default:
		return nil
	}
}

func reportOnboarding(logger *slog.Logger, res *onboard.Result) error {
	switch res.Outcome {
	case onboard.OutcomeUpToDate:
		logger.Info("repository is up to date")
		return nil
	case onboard.OutcomeCancelled:
		logger.Info("onboarding cancelled")
		return nil
	case onboard.OutcomeCommitted:
		logger.Info("changes committed", "branch", res.Branch)
		return nil
	case onboard.OutcomePushed:
		logger.Info("changes pushed", "branch", res.Branch, "forced", res.ForcedPush)
		return nil
	case onboard.OutcomeConflictUnresolved:
		return fmt.Errorf("push conflict on branch %q is unresolved; the commit is safe locally, rerun after resolving", res.Branch)
	case onboard.OutcomePushFailed:
		return fmt.Errorf("pushing branch %q failed; the commit is safe locally, check the remote and rerun", res.Branch)
	default:
		return nil
	}
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var sink io.Writer = os.Stdout
	if logFile != "" {
		sink = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    1,
			MaxBackups: 5,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(sink, opts)
	} else {
		handler = slog.NewTextHandler(sink, opts)
	}
	return slog.New(handler)
}

// loadConfig resolves the effective configuration: the config file when
// one exists, overridden by whatever flags were set on the command line.
func loadConfig(cmd *cobra.Command, logger *slog.Logger) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.LoadIfPresent(defaultConfigPath())
	}
	if err != nil {
		return nil, err
	}

	applyFlagOverrides(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Debug("configuration loaded", "project", cfg.Project.Path, "remote", git.Redact(cfg.Remote.URL))
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("project") {
		cfg.Project.Path = projectPath
	}
	if flags.Changed("remote") {
		cfg.Remote.URL = remoteURL
	}
	if flags.Changed("branch") {
		cfg.Remote.Branch = branch
	}
	if flags.Changed("message") {
		cfg.Commit.Message = message
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "git-onboard", "config.yaml")
}

func checkGit(ctx context.Context, client git.Client) error {
	ok, err := client.IsAvailable(ctx)
	if err != nil {
		return fmt.Errorf("failed to check git availability: %w", err)
	}
	if !ok {
		return fmt.Errorf("git is not installed or not on PATH")
	}
	return nil
}

// conflictResolver maps the --on-conflict flag to a resolver. The "ask"
// mode defers to the user at push time; every other mode answers the
// same way on every conflict.
func conflictResolver() (recovery.ConflictResolver, error) {
	fixed := func(r recovery.Resolution) recovery.ConflictResolver {
		return recovery.ResolverFunc(func(string) recovery.Resolution { return r })
	}
	switch onConflict {
	case "merge":
		return fixed(recovery.ResolutionMerge), nil
	case "force":
		return fixed(recovery.ResolutionForce), nil
	case "abort":
		return fixed(recovery.ResolutionAbort), nil
	case "ask":
		return askResolver(newInteractor()), nil
	default:
		return nil, fmt.Errorf("invalid --on-conflict value %q (want ask, merge, force or abort)", onConflict)
	}
}

// askResolver puts conflict handling in the user's hands. Forcing needs a
// second confirmation because it overwrites remote history.
func askResolver(ui interact.Interactor) recovery.ConflictResolver {
	return recovery.ResolverFunc(func(branch string) recovery.Resolution {
		choice, ok := ui.PromptChoice(
			fmt.Sprintf("The remote has commits that branch %q is missing. How should the push proceed?", branch),
			[]string{
				"Pull the remote changes, merge them and push again",
				"Force push, overwriting the remote history",
				"Cancel the push and keep the local commit",
			},
		)
		if !ok {
			return recovery.ResolutionAbort
		}
		switch choice {
		case 0:
			return recovery.ResolutionMerge
		case 1:
			if !ui.PromptYesNo("Force pushing deletes the remote commits. Are you sure?") {
				return recovery.ResolutionAbort
			}
			return recovery.ResolutionForce
		default:
			return recovery.ResolutionAbort
		}
	})
}

// newInteractor returns the prompt implementation for this run. With
// --yes every confirmation is answered positively and conflict menus
// fall back to aborting, so unattended runs never force push.
func newInteractor() interact.Interactor {
	if assumeYes {
		return interact.NonInteractive{YesNo: true}
	}
	return interact.NewDefaultInteractor(os.Stdin, os.Stdout)
}

// setupSignalHandler returns a context cancelled on SIGINT or SIGTERM so
// an interrupted run stops between git operations instead of mid-flight.
func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
