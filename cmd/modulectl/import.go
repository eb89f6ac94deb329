package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/spf13/cobra"
)

func newImportCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import an xlsx, PDF or tab-separated text file",
		Long: "Reads every row of FILE, creates modules that are not stored yet and updates the rest.\n" +
			"Interrupting the command stops the import; rows already written stay.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			return runImport(cmd, open, core.ImportRequest{
				Mode:     core.ImportFile,
				FileName: filepath.Base(args[0]),
				Data:     data,
			})
		},
	}
	return cmd
}

func newImportColumnCmd(open opener) *cobra.Command {
	var column, valuesPath, keysPath string

	cmd := &cobra.Command{
		Use:   "import-column",
		Short: "Set one column from a file of values, one per line",
		Long: "With --keys, line i of the values file is written to the module numbered on line i of\n" +
			"the keys file. Without it, values are paired with the stored modules in table order and\n" +
			"the line count must match the number of stored modules.",
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readLines(valuesPath)
			if err != nil {
				return err
			}
			req := core.ImportRequest{Mode: core.ImportAlignedColumn, Column: column, Values: values}
			if keysPath != "" {
				keys, err := readLines(keysPath)
				if err != nil {
					return err
				}
				req.Mode = core.ImportKeyedColumn
				req.Keys = keys
			}
			return runImport(cmd, open, req)
		},
	}

	cmd.Flags().StringVar(&column, "column", "", "column name, e.g. location or \"RFLO Date\"")
	cmd.Flags().StringVar(&valuesPath, "values", "", "file with one value per line")
	cmd.Flags().StringVar(&keysPath, "keys", "", "file with one module number per line")
	_ = cmd.MarkFlagRequired("column")
	_ = cmd.MarkFlagRequired("values")
	return cmd
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return core.SplitLines(string(data)), nil
}

func runImport(cmd *cobra.Command, open opener, req core.ImportRequest) error {
	return withService(cmd, open, func(svc *core.Service) error {
		errOut := cmd.ErrOrStderr()
		progress := func(done, total int) {
			fmt.Fprintf(errOut, "\rwriting %d/%d", done, total)
			if done == total {
				fmt.Fprintln(errOut)
			}
		}

		res, err := svc.RunImport(cmd.Context(), req, progress)
		if res != nil {
			printResult(cmd, res)
		}
		if err != nil {
			if core.IsUserFacing(err) {
				return errors.New(core.FormatUserError(err))
			}
			return err
		}
		return nil
	})
}

func printResult(cmd *cobra.Command, res *core.ImportResult) {
	out := cmd.OutOrStdout()
	if res.Error == "" {
		fmt.Fprintln(out, res.Message)
	}
	s := res.Summary
	if s.Unchanged > 0 {
		fmt.Fprintf(out, "%d modules unchanged.\n", s.Unchanged)
	}
	for _, e := range s.Errors {
		fmt.Fprintf(out, "  %s: %s\n", e.Kind, e.Error())
	}
}
