package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ngld/henge/pkg/config"
	"github.com/ngld/henge/pkg/console"
	"github.com/ngld/henge/pkg/project"
)

func newDistributeCommand() *cobra.Command {
	distributeCmd := &cobra.Command{
		Use:   "distribute [names...]",
		Short: "Distribute a project",
		Long:  `Loads the named projects (all projects if none are given), cleans their previous distribution and distributes them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			platforms, err := cmd.Flags().GetString("platforms")
			if err != nil {
				return err
			}

			local, err := cmd.Flags().GetBool("local")
			if err != nil {
				return err
			}

			progress, err := cmd.Flags().GetBool("progress")
			if err != nil {
				return err
			}

			ctx := console.WithProgress(setup(cmd), progress)

			projects, err := loadProjects(cmd, args, project.Options{
				Platforms: config.SplitList(platforms),
				Local:     local,
			})
			if err != nil {
				return err
			}

			for _, p := range projects {
				err = p.Load(ctx)
				if err != nil {
					return err
				}
			}

			for _, p := range projects {
				err = p.Clean(ctx)
				if err != nil {
					return err
				}
			}

			for _, p := range projects {
				err = p.Distribute(ctx)
				if err != nil {
					return err
				}
			}

			return nil
		},
	}

	distributeCmd.Flags().StringP("platforms", "p", "", "comma separated list of platforms to distribute")
	distributeCmd.Flags().Bool("local", false, "only distribute the host platform")
	distributeCmd.Flags().Bool("progress", false, "show download and extraction progress bars")
	return distributeCmd
}
