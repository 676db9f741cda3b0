// cpproj [project path], cpproj build [project path]
package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/qobs-build/cpproj/internal/builder"
	"github.com/qobs-build/cpproj/internal/msg"
	"github.com/spf13/cobra"
)

func doBuild(cmd *cobra.Command, args []string, opts builder.Options) error {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	b, err := builder.NewBuilderInDirectory(target)
	if err != nil {
		return err
	}
	res, err := b.Build(cmd.Context(), opts)
	if err != nil {
		return err
	}

	switch opts.Kind {
	case builder.StaticLibrary:
		msg.Info("static library built: %s", res.Artifact)
	case builder.DynamicLibrary:
		msg.Info("dynamic library built: %s", res.Artifact)
	default:
		msg.Info("executable built: %s", res.Artifact)
	}
	msg.Info("build completed")
	return nil
}

func newBuildCommand(use, short, long string) *cobra.Command {
	opts := builder.DefaultOptions()
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doBuild(cmd, args, opts)
		},
	}
	builder.BindFlags(cmd.Flags(), &opts)
	return cmd
}

// NewRootCommand assembles the cpproj command tree
func NewRootCommand() *cobra.Command {
	root := newBuildCommand(
		"cpproj [project path]",
		"C++ project generator and build driver",
		`Create C++ projects and build them. Without a subcommand, builds the project in the given path (default ".").`,
	)
	root.SilenceErrors = true
	root.SilenceUsage = true
	addHelpFlag(root)

	root.AddCommand(newBuildCommand(
		"build [project path]",
		"Build the project",
		`Build the project. If no project path is given, uses "."`,
	))
	root.AddCommand(newRunCommand())
	root.AddCommand(newNewCommand())
	root.AddCommand(newInitCommand())
	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		msg.Error("%v", err)
		os.Exit(exitCode(err))
	}
}
