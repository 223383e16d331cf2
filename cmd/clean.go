package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ngld/henge/pkg/project"
)

func newCleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [names...]",
		Short: "Clean the previous distribution of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := setup(cmd)

			projects, err := loadProjects(cmd, args, project.Options{})
			if err != nil {
				return err
			}

			for _, p := range projects {
				err = p.Clean(ctx)
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}
