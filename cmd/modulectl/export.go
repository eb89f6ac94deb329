package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/export"
	"github.com/spf13/cobra"
)

func newExportCmd(open opener) *cobra.Command {
	var (
		flags  filterFlags
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the module table to an xlsx or PDF file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var write func(io.Writer, []core.Module) error
			switch format {
			case "xlsx":
				write = export.WriteXLSX
				if out == "" {
					out = export.XLSXFileName
				}
			case "pdf":
				write = func(w io.Writer, mods []core.Module) error {
					return export.WritePDF(w, mods, time.Now())
				}
				if out == "" {
					out = export.PDFFileName
				}
			default:
				return fmt.Errorf("unknown format %q (want xlsx or pdf)", format)
			}

			f, err := flags.filter()
			if err != nil {
				return err
			}
			return withService(cmd, open, func(svc *core.Service) error {
				mods, err := svc.ListModules(cmd.Context(), f)
				if err != nil {
					return err
				}
				if err := writeFile(out, mods, write); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d modules to %s\n", len(mods), out)
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", "xlsx", "xlsx or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default modules.<format>)")
	return cmd
}

func writeFile(path string, mods []core.Module, write func(io.Writer, []core.Module) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f, mods); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
