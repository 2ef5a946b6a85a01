package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/niels/ctf-server/pkg/store"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s database schema is up to date\n", color.GreenString("✓"))
			return nil
		},
	}
}

func newSeedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load challenges from a YAML file",
		Long: `Load challenges from a YAML file into the database.

Existing challenges with the same id are updated in place. The schema is
created first when it does not exist yet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			challenges, err := store.LoadChallenges(args[0])
			if err != nil {
				return err
			}

			st, err := store.Open(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}

			n, err := store.SeedChallenges(cmd.Context(), st, challenges)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s seeded %d challenges\n", color.GreenString("✓"), n)
			return nil
		},
	}
}
