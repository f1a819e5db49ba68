package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/symptom-likelihood-server/internal/domain"
	"github.com/symptom-likelihood-server/internal/service"
)

type scoreFlags struct {
	category         string
	all              bool
	limit            int
	asJSON           bool
	nodeWeight       float64
	edgeWeight       float64
	severityWeighted bool
}

func newScoreCmd(g *globalFlags) *cobra.Command {
	sf := &scoreFlags{}
	cmd := &cobra.Command{
		Use:   "score <symptom-id>...",
		Short: "Rank conditions for the given symptom ids",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, g, sf, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&sf.category, "category", "", "Only rank conditions in this category")
	f.BoolVar(&sf.all, "all", false, "Include conditions with a zero score")
	f.IntVarP(&sf.limit, "limit", "n", 0, "Show at most n results (0 shows all)")
	f.BoolVar(&sf.asJSON, "json", false, "Print the full analysis as JSON")
	f.Float64Var(&sf.nodeWeight, "node-weight", domain.DefaultNodeWeight, "Weight of node evidence")
	f.Float64Var(&sf.edgeWeight, "edge-weight", domain.DefaultEdgeWeight, "Weight of edge evidence")
	f.BoolVar(&sf.severityWeighted, "severity-weighted", false, "Weight node evidence by severity")
	return cmd
}

func runScore(cmd *cobra.Command, g *globalFlags, sf *scoreFlags, args []string) error {
	ds, err := g.loadDataset(cmd)
	if err != nil {
		return err
	}

	scorer, err := service.NewLikelihoodScorer(
		domain.Weights{Node: sf.nodeWeight, Edge: sf.edgeWeight},
		service.WithSeverityWeighting(sf.severityWeighted),
	)
	if err != nil {
		return err
	}

	// Accept both "a b" and "a,b".
	var selection []string
	for _, arg := range args {
		selection = append(selection, strings.Split(arg, ",")...)
	}

	analysis := service.NewAnalysisService(g.logger(cmd.ErrOrStderr()), ds, scorer)
	result, err := analysis.Analyze(cmd.Context(), &service.AnalyzeParams{
		Selection:   selection,
		Category:    sf.category,
		IncludeZero: sf.all,
		Limit:       sf.limit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if sf.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	for _, id := range result.UnknownSymptoms {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: unknown symptom id %q\n", id)
	}
	if len(result.Results) == 0 {
		fmt.Fprintln(out, "No matching conditions.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tCONDITION\tCATEGORY\tNODES\tEDGES")
	for _, r := range result.Results {
		fmt.Fprintf(tw, "%.1f\t%s\t%s\t%d/%d\t%d/%d\n",
			r.Score, r.Condition, r.Category,
			r.MatchedNodeCount, r.TotalNodeCount,
			r.MatchedEdgeCount, r.TotalEdgeCount)
	}
	return tw.Flush()
}
