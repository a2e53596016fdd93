package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrsinham/rtcurate/internal/dicom"
	"github.com/mrsinham/rtcurate/internal/util"
)

func newInspectCommand() *cobra.Command {
	var (
		tags     []string
		listTags bool
	)

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the header fields of one DICOM file",
		Args: func(cmd *cobra.Command, args []string) error {
			if listTags {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fancy := isTerminal(out)

			if listTags {
				var rows [][]string
				for _, info := range util.KnownTags() {
					rows = append(rows, []string{info.Name, info.Tag.String(), info.Scope.String()})
				}
				fmt.Fprintln(out, renderTable([]string{"Name", "Tag", "Scope"}, rows, nil, fancy))
				return nil
			}

			path := args[0]
			if len(tags) == 0 {
				rec, err := dicom.NewReader().Read(cmd.Context(), path)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, recordRows(rec), nil, fancy))
				return nil
			}

			infos := make([]util.TagInfo, 0, len(tags))
			for _, name := range tags {
				info, err := util.GetTagByName(name)
				if err != nil {
					return err
				}
				infos = append(infos, info)
			}
			ds, err := dicom.ReadDataset(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				value, ok := dicom.ElementString(ds, info.Tag)
				if !ok {
					value = "(absent)"
				}
				rows = append(rows, []string{info.Name, info.Tag.String(), value})
			}
			fmt.Fprintln(out, renderTable([]string{"Name", "Tag", "Value"}, rows, nil, fancy))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&tags, "tag", "t", nil, "Tag name to print (repeatable)")
	cmd.Flags().BoolVar(&listTags, "list-tags", false, "List the tag names inspect knows")
	return cmd
}

func recordRows(rec *dicom.Record) [][]string {
	str := func(f dicom.Field[string]) string { return f.Or("(absent)") }
	num := func(f dicom.Field[int]) string {
		if v, ok := f.Get(); ok {
			return strconv.Itoa(v)
		}
		return "(absent)"
	}
	list := func(values []string) string {
		if len(values) == 0 {
			return "(none)"
		}
		return strings.Join(values, ", ")
	}
	imageType := "(absent)"
	if rec.ImageType.Present() {
		imageType = rec.ImageTypeKey()
	}

	return [][]string{
		{"Path", rec.Path},
		{"Subject", rec.Identity.Subject},
		{"Timepoint", rec.Identity.Timepoint},
		{"PatientID", str(rec.PatientID)},
		{"StudyDate", str(rec.StudyDate)},
		{"StudyInstanceUID", str(rec.StudyInstanceUID)},
		{"SeriesInstanceUID", str(rec.SeriesInstanceUID)},
		{"SOPInstanceUID", str(rec.SOPInstanceUID)},
		{"Modality", str(rec.Modality)},
		{"SeriesDescription", str(rec.SeriesDescription)},
		{"SeriesNumber", num(rec.SeriesNumber)},
		{"InstanceNumber", num(rec.InstanceNumber)},
		{"ImageType", imageType},
		{"TransferSyntaxUID", str(rec.TransferSyntaxUID)},
		{"ApprovalStatus", str(rec.ApprovalStatus)},
		{"PlanIntent", str(rec.PlanIntent)},
		{"RTPlanDate", str(rec.PlanDate)},
		{"RTPlanTime", str(rec.PlanTime)},
		{"ReferencedStructureSets", list(rec.ReferencedStructureSetUIDs)},
		{"ReferencedDoses", list(rec.ReferencedDoseUIDs)},
		{"ReferencedCTSeries", str(rec.ReferencedSeriesUID)},
		{"DoseType", str(rec.DoseType)},
		{"DoseSummationType", str(rec.DoseSummationType)},
	}
}
