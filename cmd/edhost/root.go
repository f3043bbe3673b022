package main

import (
	"io"

	"github.com/ededitor/edhost/capability"
	"github.com/ededitor/edhost/handles"
	"github.com/ededitor/edhost/input"
	"github.com/ededitor/edhost/render"
	"github.com/ededitor/edhost/scene"
	"github.com/ededitor/edhost/unit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type app struct {
	log      *zap.Logger
	closeLog func()
	logLevel string
	logFile  string
}

func newRootCmd() *cobra.Command {
	a := &app{log: zap.NewNop(), closeLog: func() {}}

	cmd := &cobra.Command{
		Use:           "edhost",
		Short:         "Host sandboxed WebAssembly units and wire their capabilities",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setLogger(a.logLevel, a.logFile, cmd.ErrOrStderr())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.closeLog()
		},
	}
	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", scene.DefaultLogLevel, "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&a.logFile, "log-file", "", "also write JSON logs to this file, rotated by size")

	cmd.AddCommand(
		newRunCmd(a),
		newPlayCmd(a),
		newInspectCmd(a),
		newSchemaCmd(),
		newInitCmd(),
		newDemoCmd(),
	)
	return cmd
}

// setLogger replaces the CLI logger and hands it to every library package.
func (a *app) setLogger(level, file string, w io.Writer) error {
	log, closer, err := newLogger(level, file, w)
	if err != nil {
		return err
	}
	a.closeLog()
	a.log, a.closeLog = log, closer

	unit.SetLogger(log.Named("unit"))
	capability.SetLogger(log.Named("capability"))
	handles.SetLogger(log.Named("handles"))
	render.SetLogger(log.Named("render"))
	input.SetLogger(log.Named("input"))
	return nil
}

// loadScene reads a scene and applies its log settings unless the flags
// were given explicitly.
func (a *app) loadScene(cmd *cobra.Command, path string, w io.Writer) (*scene.Scene, error) {
	s, err := scene.Load(path)
	if err != nil {
		return nil, err
	}
	level, file := a.logLevel, a.logFile
	if !cmd.Flags().Changed("log-level") && s.Log.Level != "" {
		level = s.Log.Level
	}
	if !cmd.Flags().Changed("log-file") && s.Log.File != "" {
		file = s.Log.File
	}
	if err := a.setLogger(level, file, w); err != nil {
		return nil, err
	}
	return s, nil
}
