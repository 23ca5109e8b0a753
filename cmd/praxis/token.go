package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gosuda/praxis/internal/auth"
	"github.com/gosuda/praxis/internal/config"
	"github.com/gosuda/praxis/internal/server/middleware"
)

type tokenOptions struct {
	uid   string
	email string
	role  string
	ttl   time.Duration
}

func newTokenCommand() *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed access token for local callers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !middleware.ValidRole(opts.role) {
				return fmt.Errorf("invalid role %q: must be admin, operator or viewer", opts.role)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ttl := opts.ttl
			if ttl == 0 {
				ttl = cfg.JWT.AccessTTL
			}

			tok, err := auth.IssueAccessToken(cfg.JWT.Secret, opts.uid, opts.email, opts.role, ttl)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.uid, "uid", "", "user id (required)")
	cmd.Flags().StringVar(&opts.email, "email", "", "user email")
	cmd.Flags().StringVar(&opts.role, "role", middleware.RoleViewer, "role (admin|operator|viewer)")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "token lifetime (default PRAXIS_JWT_ACCESS_TTL)")
	_ = cmd.MarkFlagRequired("uid")

	return cmd
}
