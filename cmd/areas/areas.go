// Package areas provides the areas command for inspecting and editing the
// configured areas without running the counter.
package areas

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tphakala/occupancy-go/internal/analysis"
	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/datastore"
)

// Command creates and returns the areas command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "areas",
		Short: "Manage counting areas",
	}

	cmd.AddCommand(
		listCommand(settings),
		seedCommand(settings),
		importCommand(settings),
		resetCommand(settings),
	)
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show areas with their current occupancy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := analysis.OpenDataStore(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.GetAreaOccupancy(cmd.Context())
			if err != nil {
				return err
			}
			return printOccupancy(cmd.OutOrStdout(), rows)
		},
	}
}

func seedCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the default areas on an empty database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := analysis.OpenDataStore(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer store.Close()

			created, err := store.SeedDefaultAreas(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %d areas\n", created)
			return nil
		},
	}
}

func importCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create or update areas and zone bindings from a YAML file",
		Long: `Import reads a YAML file with an "areas" list. Areas are matched by name
and bindings by camera and zones, so the same file can be imported repeatedly.
A running counter picks up the changes on POST /api/v2/zones/reload.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := datastore.LoadAreaFile(args[0])
			if err != nil {
				return err
			}

			store, err := analysis.OpenDataStore(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := datastore.ImportAreas(cmd.Context(), store, file)
			if err != nil {
				return fmt.Errorf("import stopped after %d areas: %w", result.Areas, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d areas and %d bindings\n", result.Areas, result.Bindings)
			return nil
		},
	}
}

func resetCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <area-id> [value]",
		Short: "Set an area's occupancy, 0 when no value is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid area id %q", args[0])
			}
			value := 0
			if len(args) == 2 {
				if value, err = strconv.Atoi(args[1]); err != nil {
					return fmt.Errorf("invalid occupancy value %q", args[1])
				}
			}

			store, err := analysis.OpenDataStore(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer store.Close()

			area, err := store.ResetOccupancy(cmd.Context(), uint(id), value)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s occupancy set to %d\n", area.Name, area.CurrentOccupancy)
			return nil
		},
	}
}

func printOccupancy(w io.Writer, rows []datastore.AreaOccupancy) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tOCCUPANCY\tCAPACITY\tLOAD")
	for i := range rows {
		r := &rows[i]
		capacity := "-"
		load := "-"
		if r.Capacity > 0 {
			capacity = strconv.Itoa(r.Capacity)
			load = fmt.Sprintf("%.0f%% %s", r.Percentage, r.Color)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", r.AreaID, r.Name, r.Kind, r.Occupancy, capacity, load)
	}
	return tw.Flush()
}
