package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reelgate/internal/server"
)

// NewTokenCmd creates the token command.
func NewTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a gateway bearer token",
		Long: `Mint a bearer token signed with gateway.auth.jwt_secret. The subject
becomes the acting user of runs started with the token.`,
		Example: `  export REELGATE_TOKEN=$(reelgate token --subject alice --ttl 24h)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := GetCLIContext(cmd).Config
			if cfg.Gateway.Auth.JWTSecret == "" {
				return errors.New("gateway.auth.jwt_secret is not set")
			}
			if subject == "" {
				return errors.New("--subject is required")
			}

			issuer, err := server.GatewayIssuer(cfg, ttl)
			if err != nil {
				return err
			}
			token, err := issuer.Mint(subject, "", "")
			if err != nil {
				return fmt.Errorf("mint token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "user id carried by the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
