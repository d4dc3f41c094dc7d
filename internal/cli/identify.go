package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"identity-reconciliation/internal/database"
	"identity-reconciliation/internal/models"
	"identity-reconciliation/internal/service"
)

func identifyCmd(g *globals) *cobra.Command {
	var email, phone string

	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Reconcile one contact submission against the database",
		Example: `  identity identify --email mcfly@hillvalley.edu --phone 123456
  identity --db postgres://localhost/identity identify --phone 123456`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			resp, err := svc.Identify(cmd.Context(), models.IdentifyRequest{
				Email:       optional(email),
				PhoneNumber: optional(phone),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "contact email address")
	cmd.Flags().StringVar(&phone, "phone", "", "contact phone number")
	return cmd
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
