// cpproj new <path>, cpproj init [name]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/qobs-build/cpproj/internal/builder"
	"github.com/qobs-build/cpproj/internal/msg"
	"github.com/qobs-build/cpproj/internal/scaffold"
	"github.com/spf13/cobra"
)

func getProgramName() string {
	if len(os.Args) == 0 {
		return "cpproj"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

func printNextSteps(dir string, data scaffold.Data) {
	programName := getProgramName()
	artifact := filepath.Join(builder.OutputDir(builder.ProfileRelease), builder.ArtifactName(builder.Executable, data.Ident))

	fmt.Fprintf(msg.Stdout, "\nCreated project %s in %s\n", color.HiGreenString(data.Ident), dir)
	fmt.Fprintf(msg.Stdout, "You can now do %s to build, then run %s.\n",
		color.HiCyanString(programName+" build "+dir+" --release"),
		color.HiCyanString("./"+filepath.ToSlash(filepath.Join(dir, artifact))),
	)
}

func newNewCommand() *cobra.Command {
	var noGit bool
	cmd := &cobra.Command{
		Use:   "new <path>",
		Short: "Create a new project in a new directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := scaffold.New(args[0], scaffold.Options{Git: !noGit})
			if err != nil {
				return err
			}
			printNextSteps(args[0], data)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noGit, "no-git", false, "Don't initialize a git repository")
	return cmd
}

func newInitCommand() *cobra.Command {
	var noGit bool
	cmd := &cobra.Command{
		Use:   "init [name]",
		Short: "Create a new project in the current directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("could not get current directory: %w", err)
			}
			name := filepath.Base(cwd)
			if len(args) > 0 {
				name = args[0]
			}
			data, err := scaffold.Init(".", name, scaffold.Options{Git: !noGit})
			if err != nil {
				return err
			}
			printNextSteps(".", data)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noGit, "no-git", false, "Don't initialize a git repository")
	return cmd
}
