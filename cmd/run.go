// cpproj run [project path] [-- program args]
package cmd

import (
	"github.com/qobs-build/cpproj/internal/builder"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	opts := builder.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "run [project path] [-- args]",
		Short: "Build and run the executable",
		Long:  `Build the project as an executable and run it. Arguments after -- are passed to the program.`,
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) > 0 && cmd.ArgsLenAtDash() != 0 {
				target = args[0]
				args = args[1:] // other arguments will be passed to program
			}
			b, err := builder.NewBuilderInDirectory(target)
			if err != nil {
				return err
			}
			return b.BuildAndRun(cmd.Context(), opts, args)
		},
	}
	builder.BindProfileFlags(cmd.Flags(), &opts.Profile)
	return cmd
}
