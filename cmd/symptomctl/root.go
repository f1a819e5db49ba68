// symptomctl scores symptom selections against a condition dataset and
// manages the local feedback database.
//
// Usage:
//
//	symptomctl score cough_productive wheeze_localised [--category=respiratory] [--all] [--json]
//	symptomctl validate [--dataset=conditions.yaml]
//	symptomctl symptoms [--json]
//	symptomctl feedback export [-o file]
//	symptomctl feedback import -f file
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/symptom-likelihood-server/internal/config"
	"github.com/symptom-likelihood-server/internal/dataset"
	"github.com/symptom-likelihood-server/internal/domain"
)

// version is set at build time via -ldflags.
var version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	datasetPath string
	lenient     bool
	logLevel    string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "symptomctl",
		Short: "Rank conditions by likelihood for a set of symptoms",
		Long: "symptomctl loads a condition dataset (the embedded default or a YAML/JSON file),\n" +
			"validates it and ranks conditions against selected symptom ids.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}

	f := root.PersistentFlags()
	f.StringVar(&g.datasetPath, "dataset", os.Getenv("SYMPTOM_DATASET"), "Dataset file (YAML or JSON); empty uses the embedded dataset")
	f.BoolVar(&g.lenient, "lenient", false, "Skip malformed conditions instead of rejecting the dataset")
	f.StringVar(&g.logLevel, "log-level", "warn", "Log level for diagnostics on stderr")

	root.AddCommand(newScoreCmd(g))
	root.AddCommand(newValidateCmd(g))
	root.AddCommand(newSymptomsCmd(g))
	root.AddCommand(newFeedbackCmd(g))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (g *globalFlags) logger(errOut io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(errOut)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	level, err := logrus.ParseLevel(g.logLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	return logger
}

func (g *globalFlags) loadDataset(cmd *cobra.Command) (*domain.Dataset, error) {
	loader := dataset.NewLoader(g.logger(cmd.ErrOrStderr()), dataset.WithLenient(g.lenient))
	ds, err := loader.LoadPath(g.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	return ds, nil
}

// liteConfig is the lite server's configuration, so the CLI works on the
// same data directory.
func liteConfig() *config.LiteConfig {
	return config.LoadLiteConfig()
}
