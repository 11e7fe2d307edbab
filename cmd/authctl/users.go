package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"qazna.org/authcore/internal/account"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage identities",
	}
	cmd.AddCommand(newUsersCreateCmd(), newUsersListCmd(),
		newSetActiveCmd("activate", true), newSetActiveCmd("deactivate", false))
	return cmd
}

func newUsersCreateCmd() *cobra.Command {
	var (
		password string
		admin    bool
		inactive bool
	)
	cmd := &cobra.Command{
		Use:   "create <email>",
		Short: "Create an identity",
		Long: `Create an identity. The password is taken from --password, or read from
the first line of stdin when --password is "-".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "-" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("a password is required (--password)")
			}
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			svc := e.accounts()
			identity, err := svc.Register(cmd.Context(), account.Registration{
				Email:    args[0],
				Password: password,
				Elevated: admin,
				Inactive: inactive,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), identity.ID.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", `password for the new identity ("-" reads stdin)`)
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the identity deactivated")
	return cmd
}

func newUsersListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List identities, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			identities, err := e.accounts().List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL\tACTIVE\tADMIN\tCREATED")
			for _, id := range identities {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", id.ID, id.Email, id.Active, id.Elevated,
					id.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", account.DefaultListLimit, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func newSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid identity id %q: %w", args[0], err)
			}
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			identity, err := e.accounts().SetActive(cmd.Context(), id, active)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s active=%t\n", identity.ID, identity.Active)
			return nil
		},
	}
}
