// Package cmd implements the henge command line interface
package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ngld/henge/pkg/config"
	"github.com/ngld/henge/pkg/console"
	"github.com/ngld/henge/pkg/expected"
	"github.com/ngld/henge/pkg/pkgmeta"
	"github.com/ngld/henge/pkg/project"
)

var logOutput io.Writer = os.Stderr

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "henge",
		Short: "Declarative multi-platform project distributor",
		Long: `henge reads a distribution config (dist.config.yml by default), downloads the dependencies
of every target platform, runs the configured procedures and packs the results into archives.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultFile, "configuration file")
	rootCmd.PersistentFlags().Bool("verbose", false, "print debug messages")
	rootCmd.PersistentFlags().Bool("no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(newDistributeCommand(), newCleanCommand())
	return rootCmd
}

func newLogger(cmd *cobra.Command) *zerolog.Logger {
	noColor, _ := cmd.Root().PersistentFlags().GetBool("no-color")
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(console.NewConsoleWriterTo(logOutput, !noColor)).Level(level)
	return &logger
}

func setup(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return console.WithLogger(ctx, newLogger(cmd))
}

// loadProjects reads the configuration file and returns the requested projects. Selection errors
// are reported before any project is touched.
func loadProjects(cmd *cobra.Command, names []string, opts project.Options) ([]*project.Project, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	configFile, err = filepath.Abs(configFile)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to resolve %s", configFile)
	}

	pkg, err := pkgmeta.Find(filepath.Dir(configFile))
	if err != nil {
		return nil, err
	}

	configs, err := config.LoadFile(configFile)
	if err != nil {
		return nil, err
	}

	selected, err := config.Select(configs, names, pkg.Data.Name)
	if err != nil {
		return nil, err
	}

	opts.Dir = pkg.Dir
	opts.Name = pkg.Data.Name
	opts.Version = pkg.Data.Version

	projects := make([]*project.Project, len(selected))
	for idx, cfg := range selected {
		projects[idx] = project.New(cfg, opts)
	}
	return projects, nil
}

// run executes the CLI with the given arguments and returns the process exit code
func run(ctx context.Context, args []string) int {
	rootCmd := newRootCommand()
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	logger := newLogger(rootCmd)
	if expected.Is(err) {
		logger.Error().Msg(err.Error())
	} else {
		logger.Error().Err(err).Msg("Distribution failed")
	}
	return 1
}

// Execute runs the CLI and exits with a non-zero code on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:])
	stop()

	os.Exit(code)
}
