package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"identity-reconciliation/internal/database"
	"identity-reconciliation/internal/service"
)

func showCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <contact-id>",
		Short: "Print the consolidated identity a contact belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid contact id %q", args[0])
			}

			cfg, err := g.config()
			if err != nil {
				return err
			}
			log := commandLogger(cmd.ErrOrStderr(), cfg)

			db, err := openDB(cfg, log)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := service.NewReconciliationService(database.NewContactStore(db), db, service.WithLogger(log))
			group, err := svc.Lookup(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), service.BuildResponse(group.Primary, group.Secondaries))
		},
	}
}
