package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dunamismax/cutout/internal/config"
	"github.com/dunamismax/cutout/internal/domain"
	"github.com/spf13/cobra"
)

func newProfilesCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the profiles in a profile file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := config.LoadProfiles(path)
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No profiles defined.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tFORMAT\tRESIZE\tBACKGROUND")
			for _, p := range profiles {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					p.ID, p.Name, formatLabel(p.Config), resizeLabel(p.Config.Resize), onOff(p.Config.BackgroundRemoval.Enabled))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&path, "profiles", "profiles.json", "JSON profile file")
	return cmd
}

func formatLabel(cfg domain.PipelineConfig) string {
	if cfg.OutputFormat == "" {
		return "source"
	}
	return cfg.OutputFormat
}

func resizeLabel(r domain.ResizeConfig) string {
	if !r.Enabled {
		return "off"
	}
	dim := func(v int) string {
		if v <= 0 {
			return "*"
		}
		return fmt.Sprint(v)
	}
	label := dim(r.Width) + "x" + dim(r.Height)
	if !r.KeepAspectRatio {
		label += " stretch"
	}
	return label
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
