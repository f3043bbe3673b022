package main

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/ededitor/edhost/internal/demo"
	"github.com/ededitor/edhost/scene"
	"github.com/spf13/cobra"
)

// DemoScene is the scene file name written by the demo command.
const DemoScene = "scene.yaml"

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo <dir>",
		Short: "Write the demo modules and a scene that runs them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create demo directory: %w", err)
			}

			modules := demo.Modules()
			for _, name := range slices.Sorted(maps.Keys(modules)) {
				path := filepath.Join(dir, name)
				if err := os.WriteFile(path, modules[name], 0o644); err != nil {
					return fmt.Errorf("write %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			}

			path := filepath.Join(dir, DemoScene)
			if err := scene.Write(path, scene.Example()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n\nplay it with: edhost play %s\n", path, path)
			return nil
		},
	}
}
