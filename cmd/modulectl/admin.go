package main

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/moduletrack/internal/admin"
	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/spf13/cobra"
)

func newEvaluateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate MODULE_NO",
		Short: "Re-run the anomaly check on one module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, func(svc *core.Service) error {
				m, err := svc.EvaluateModule(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if m.IsAnomaly {
					fmt.Fprintf(out, "%s: anomaly: %s\n", m.ModuleNo, m.AnomalyExplanation)
				} else {
					fmt.Fprintf(out, "%s: ok\n", m.ModuleNo)
				}
				return nil
			})
		},
	}
}

func newResetCmd(open opener) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every module",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete all modules without --yes")
			}
			return withService(cmd, open, func(svc *core.Service) error {
				n, err := admin.ResetAll(cmd.Context(), svc)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d modules\n", n)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all modules")
	return cmd
}
