package main

import (
	"fmt"

	"github.com/ededitor/edhost/unit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <module.wasm>",
		Short: "List a module's imports and exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := unit.NewContext(ctx, &unit.Config{Name: "inspect"})
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			shape, err := unit.Inspect(ctx, c, unit.File(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "module %s\n", shape.Name)
			fmt.Fprintf(out, "\nimports (%d):\n", len(shape.Imports))
			for _, imp := range shape.Imports {
				fmt.Fprintf(out, "  %-32s %s\n", imp.String(), imp.Signature)
			}
			for _, mem := range shape.ImportedMemories {
				fmt.Fprintf(out, "  %-32s memory (unsupported)\n", mem)
			}
			fmt.Fprintf(out, "\nexports (%d):\n", len(shape.Exports))
			for _, exp := range shape.Exports {
				fmt.Fprintf(out, "  %-32s %s\n", exp.Name, exp.Signature)
			}
			for _, mem := range shape.Memories {
				fmt.Fprintf(out, "  %-32s memory\n", mem)
			}

			a.log.Debug("inspected module",
				zap.String("module", shape.Name),
				zap.Int("imports", len(shape.Imports)),
				zap.Int("exports", len(shape.Exports)))
			return nil
		},
	}
}
