package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragchat/internal/config"
	"ragchat/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// rootState is shared by the commands of one invocation.
type rootState struct {
	factory    Factory
	configPath string
	verbose    bool

	logger *zap.Logger
	app    *App
}

// NewRootCmd builds the command tree. factory assembles the components once
// the config is loaded.
func NewRootCmd(factory Factory) *cobra.Command {
	st := &rootState{factory: factory}
	root := &cobra.Command{
		Use:   "ragchat",
		Short: "Ask questions about your documents",
		Long: `ragchat ingests PDF, text and web pages into a quota-bounded vector
collection and answers questions from the retrieved chunks with a chat model.`,
		Version:            Version,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  st.setup,
		PersistentPostRunE: st.teardown,
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", "", "path to YAML config file (default ./ragchat.yaml, then ~/.config/ragchat/config.yaml)")
	root.PersistentFlags().BoolVarP(&st.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newIngestCmd(st),
		newSearchCmd(st),
		newAskCmd(st),
		newChatCmd(st),
		newCountCmd(st),
	)
	return root
}

// Execute runs the CLI with the default factory.
func Execute(ctx context.Context) error {
	return NewRootCmd(Build).ExecuteContext(ctx)
}

func (st *rootState) setup(cmd *cobra.Command, _ []string) error {
	logger, err := logging.New(st.verbose)
	if err != nil {
		return err
	}
	st.logger = logger

	var cfg *config.AppConfig
	if st.configPath == "" {
		var path string
		cfg, path, err = config.LoadDefault()
		if err == nil {
			logger.Debug("config loaded", zap.String("path", path))
		}
	} else {
		cfg, err = config.Load(st.configPath)
	}
	if err != nil {
		return err
	}

	st.app, err = st.factory(cmd.Context(), cfg, logger)
	return err
}

func (st *rootState) teardown(*cobra.Command, []string) error {
	var err error
	if st.app != nil {
		err = st.app.Close()
	}
	if st.logger != nil {
		logging.Sync(st.logger)
	}
	return err
}

func (st *rootState) context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
