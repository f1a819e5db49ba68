package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/symptom-likelihood-server/internal/domain"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a dataset and report every problem found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := g.loadDataset(cmd)
			if err != nil {
				var malformed *domain.MalformedDatasetError
				if errors.As(err, &malformed) {
					for _, p := range malformed.Problems {
						fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", p)
					}
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Dataset OK: %d categories, %d conditions, %d symptoms (version %s)\n",
				len(ds.Categories()), ds.Len(), len(ds.Symptoms()), ds.Version())
			return nil
		},
	}
}

func newSymptomsCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "symptoms",
		Short: "List selectable symptom ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := g.loadDataset(cmd)
			if err != nil {
				return err
			}

			symptoms := ds.Symptoms()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(symptoms)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSEVERITY\tCONDITIONS")
			for _, s := range symptoms {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.ID, s.Name, s.Severity, len(s.Conditions))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
