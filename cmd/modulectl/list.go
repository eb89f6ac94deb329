package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/spf13/cobra"
)

// filterFlags are shared by list and export.
type filterFlags struct {
	module, yard, location, shipment, status string
	anomalies                                bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.module, "module", "", "module number contains")
	cmd.Flags().StringVar(&f.yard, "yard", "", "yard equals")
	cmd.Flags().StringVar(&f.location, "location", "", "location equals")
	cmd.Flags().StringVar(&f.shipment, "shipment", "", "shipment number equals")
	cmd.Flags().StringVar(&f.status, "status", "", "RFLO date status")
	cmd.Flags().BoolVar(&f.anomalies, "anomalies", false, "only modules flagged as anomalies")
}

func (f *filterFlags) filter() (core.Filter, error) {
	out := core.Filter{
		ModuleNo:   f.module,
		Yard:       f.yard,
		Location:   f.location,
		ShipmentNo: f.shipment,
	}
	if f.status != "" {
		st, ok := core.ParseStatus(f.status)
		if !ok {
			return out, fmt.Errorf("unknown status %q (want one of %v)", f.status, core.Statuses)
		}
		out.Status = st
	}
	if f.anomalies {
		out.Anomaly = core.Ptr(true)
	}
	return out, nil
}

func newListCmd(open opener) *cobra.Command {
	var flags filterFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := flags.filter()
			if err != nil {
				return err
			}
			return withService(cmd, open, func(svc *core.Service) error {
				mods, err := svc.ListModules(cmd.Context(), f)
				if err != nil {
					return err
				}
				printModules(cmd, mods)
				return nil
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func printModules(cmd *cobra.Command, mods []core.Module) {
	out := cmd.OutOrStdout()
	if len(mods) == 0 {
		fmt.Fprintln(out, "No modules found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tYARD\tLOCATION\tRFLO DATE\tSTATUS\tSHIPMENT\tSIGNED\tANOMALY")
	for _, m := range mods {
		anomaly := "-"
		if m.IsAnomaly {
			anomaly = m.AnomalyExplanation
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ModuleNo, dash(m.Yard), dash(m.Location), dash(core.DisplayDate(m.RFLODate)),
			m.Status, dash(m.ShipmentNo), core.FormatSigned(m.SignedReport), anomaly)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d modules\n", len(mods))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
