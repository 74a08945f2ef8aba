package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kominfo-unma/canva-claim-api/internal/app/claimform"
)

// errUnavailable is returned when the chosen organization has already claimed.
var errUnavailable = errors.New("divisi tidak tersedia atau sudah claim")

func (a *app) newViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view <path>",
		Short: "Show which screen the server serves for a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			v, err := c.View(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, v)
			return nil
		},
	}
}

func (a *app) newOrganizationsCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "organizations",
		Aliases: []string{"orgs"},
		Short:   "List organizations that can still claim",
		RunE: func(cmd *cobra.Command, _ []string) error {
			form, err := a.loadForm(cmd)
			if err != nil {
				return err
			}
			defer form.flow.Close()
			if err := form.flow.LoadError(); err != nil {
				return err
			}

			if all {
				available := make(map[string]bool)
				for _, o := range form.flow.Available() {
					available[o] = true
				}
				for _, o := range form.orgs {
					mark := "claimed"
					if available[o] {
						mark = "available"
					}
					fmt.Fprintf(a.out, "%-10s %s\n", mark, o)
				}
				return nil
			}
			for _, o := range form.flow.Available() {
				fmt.Fprintln(a.out, o)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include organizations that already claimed")
	return cmd
}

func (a *app) newSubmitCommand() *cobra.Command {
	var org, email string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Claim Canva Pro for an organization",
		Long: `Submit records one claim for an organization. Each organization can claim once;
the invite is sent to the email given here.

Example:
  claimctl submit --organization "Divisi Humas" --email humas@example.com`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			form, err := a.loadForm(cmd)
			if err != nil {
				return err
			}
			defer form.flow.Close()
			if err := form.flow.LoadError(); err != nil {
				// The store still rejects a second claim for the same organization.
				fmt.Fprintf(a.err, "warning: could not load claimed organizations: %v\n", err)
			}

			if strings.TrimSpace(org) == "" {
				if org, err = a.prompt("Divisi: "); err != nil {
					return err
				}
			}
			if strings.TrimSpace(email) == "" {
				if email, err = a.prompt("Email: "); err != nil {
					return err
				}
			}
			if strings.TrimSpace(org) != "" && !form.flow.SetOrganization(org) {
				return fmt.Errorf("%w: %s", errUnavailable, strings.TrimSpace(org))
			}
			form.flow.SetEmail(email)

			ctx, cancel := a.context(cmd)
			defer cancel()
			if err := form.flow.Submit(ctx); err != nil {
				if msg := form.flow.ErrorMessage(); msg != "" {
					return errors.New(msg)
				}
				return err
			}

			conf := form.flow.Confirmation()
			if conf == nil {
				return nil
			}
			fmt.Fprintln(a.out, conf.Title)
			fmt.Fprintln(a.out, conf.Description)
			for i, item := range conf.Checklist {
				fmt.Fprintf(a.out, "  %d. %s\n", i+1, item)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&org, "organization", "o", "", "organization (divisi) name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "email that receives the invite")
	return cmd
}

type loadedForm struct {
	flow *claimform.Flow
	orgs []string
}

// loadForm fetches the configured organizations and builds a claim form over them.
func (a *app) loadForm(cmd *cobra.Command) (*loadedForm, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.context(cmd)
	defer cancel()

	orgs, err := c.Organizations(ctx)
	if err != nil {
		return nil, err
	}
	flow := claimform.New(c, orgs.Organizations)
	// A failed load is kept on the flow as LoadError.
	_ = flow.Load(ctx)
	return &loadedForm{flow: flow, orgs: orgs.Organizations}, nil
}
