package cli

import (
	"fmt"
	"strconv"

	"scene-server/internal/app"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}
	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all pending migrations", Args: cobra.NoArgs, Run: runMigrate("up")},
		&cobra.Command{Use: "down", Short: "Roll back all migrations", Args: cobra.NoArgs, Run: runMigrate("down")},
		&cobra.Command{Use: "version", Short: "Print the current schema version", Args: cobra.NoArgs, Run: runMigrate("version")},
		&cobra.Command{Use: "force <version>", Short: "Set the schema version without running migrations", Args: cobra.ExactArgs(1), Run: runMigrate("force")},
	)
	RootCmd.AddCommand(cmd)
}

func runMigrate(op string) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			exitErr("connect", err)
		}
		defer s.Close()

		m := app.NewMigrator(s.infra.Pool, s.boot)
		switch op {
		case "up":
			err = m.Up(ctx)
		case "down":
			err = m.Down(ctx)
		case "force":
			var version int
			version, err = strconv.Atoi(args[0])
			if err == nil {
				err = m.Force(ctx, version)
			}
		case "version":
			version, dirty, vErr := m.Version(ctx)
			if vErr != nil {
				exitErr("migrate version", vErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return
		}
		if err != nil {
			exitErr("migrate "+op, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", op)
	}
}
