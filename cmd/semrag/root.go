package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dshills/semrag/internal/config"
	"github.com/dshills/semrag/internal/logger"
)

// cli holds the global flags and the state loaded before every command
type cli struct {
	dataDir  string
	logLevel string
	logJSON  bool
	debug    bool

	cfg *config.Config
	log *log.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "semrag",
		Short:         "Semantic-chunking retrieval augmented generation",
		Long:          "Ingest documents with semantic chunking, search them and answer questions with a language model.\nSettings come from SEMRAG_* environment variables; the flags below override them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
	}

	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "Directory for the database and vector index (default ~/.semrag)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&c.logJSON, "log-json", false, "Output logs in JSON format")
	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		c.serveCmd(),
		c.ingestCmd(),
		c.uploadCmd(),
		c.askCmd(),
		c.searchCmd(),
		c.evalCmd(),
		c.statusCmd(),
		versionCmd(),
	)

	return root
}

// load reads the configuration, applies flag overrides and builds the logger.
// Logs go to stderr; stdout carries command output and the MCP protocol.
func (c *cli) load() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.debug {
		cfg.Log.Level = logger.DebugLevel
	}
	if c.logJSON {
		cfg.Log.JSON = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.cfg = cfg
	c.log = logger.New(cfg.LoggerConfig())
	return nil
}

// prepareDataDir creates the directories the stores write into
func (c *cli) prepareDataDir() error {
	dirs := []string{c.cfg.DataDir, filepath.Dir(c.cfg.DatabasePath())}
	if c.cfg.VectorIndex.Backend == config.IndexChromem {
		dirs = append(dirs, c.cfg.ChromemPath())
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// run builds the app, runs fn and closes the app
func (c *cli) run(cmd *cobra.Command, fn func(a *app) error) error {
	if err := c.prepareDataDir(); err != nil {
		return err
	}

	a, err := newApp(c.cfg, c.log)
	if err != nil {
		return err
	}
	defer a.Close()

	c.log.Debug("Running command", "command", cmd.Name())
	return fn(a)
}
