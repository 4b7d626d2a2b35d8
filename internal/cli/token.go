package cli

import (
	"fmt"
	"strings"
	"time"

	"classroom-quiz-service/internal/auth"
	"classroom-quiz-service/internal/config"
	"classroom-quiz-service/internal/domain"
	"github.com/spf13/cobra"
)

// NewTokenCmd issues an access token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		name    string
		email   string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			p := domain.Principal{
				ID:    subject,
				Name:  name,
				Email: email,
				Role:  domain.Role(strings.ToUpper(role)),
			}
			switch p.Role {
			case domain.RoleStudent, domain.RoleCR, domain.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			authn := auth.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
			token, err := authn.Issue(p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "user id (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "STUDENT, CR or ADMIN")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
