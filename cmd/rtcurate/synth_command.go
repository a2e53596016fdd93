package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrsinham/rtcurate/internal/dicom/modalities"
	"github.com/mrsinham/rtcurate/internal/dicom/synth"
	"github.com/mrsinham/rtcurate/internal/dicom/synth/noise"
)

func newSynthCommand() *cobra.Command {
	var (
		output   string
		scenario string
		seed     uint64
		list     bool
		noisy    string
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic DICOM pile for a named scenario",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fancy := isTerminal(out)
			if list {
				scenarios := synth.Scenarios()
				rows := make([][]string, 0, len(scenarios))
				for _, name := range synth.ScenarioNames() {
					rows = append(rows, []string{name, scenarios[name]})
				}
				fmt.Fprintln(out, renderTable([]string{"Scenario", "Description"}, rows, nil, fancy))
				return nil
			}
			if output == "" {
				return fmt.Errorf("--output is required")
			}

			profile, err := noise.ParseKinds(noisy)
			if err != nil {
				return err
			}
			w := synth.NewWriter(output, seed)
			w.Noise = profile

			m, err := synth.Build(w, scenario)
			if err != nil {
				return err
			}

			perModality := map[modalities.Modality]int{}
			for _, f := range m.Files {
				perModality[f.Modality]++
			}
			mods := make([]string, 0, len(perModality))
			for mod := range perModality {
				mods = append(mods, string(mod))
			}
			sort.Strings(mods)
			rows := make([][]string, 0, len(mods))
			for _, mod := range mods {
				rows = append(rows, []string{mod, strconv.Itoa(perModality[modalities.Modality(mod)])})
			}

			heading(out, fmt.Sprintf("scenario %s written to %s", m.Scenario, output), fancy)
			fmt.Fprintf(out, "subjects: %v\nfiles: %d (+%d junk)\n", m.Subjects, len(m.Files), len(m.Junk))
			fmt.Fprintln(out, renderTable([]string{"Modality", "Files"}, rows, []columnAlignment{alignLeft, alignRight}, fancy))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Directory to write the pile into")
	cmd.Flags().StringVarP(&scenario, "scenario", "s", "full", "Scenario name")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Seed for deterministic UIDs")
	cmd.Flags().BoolVar(&list, "list", false, "List the available scenarios")
	cmd.Flags().StringVar(&noisy, "noise", "", "Vendor noise added to every image series (comma-separated: siemens-csa, ge-private, philips-private, malformed-lengths, or all)")
	return cmd
}
