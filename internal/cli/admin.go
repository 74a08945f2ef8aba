package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kominfo-unma/canva-claim-api/internal/adapters/apiclient"
	"github.com/kominfo-unma/canva-claim-api/internal/app/adminreview"
	"github.com/kominfo-unma/canva-claim-api/internal/app/export"
	"github.com/kominfo-unma/canva-claim-api/internal/domain"
	"github.com/kominfo-unma/canva-claim-api/internal/platform/clock"
)

const passwordEnv = envPrefix + "_PASSWORD"

func (a *app) newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Review, delete and export claims (requires login)",
	}
	cmd.AddCommand(
		a.newLoginCommand(),
		a.newLogoutCommand(),
		a.newWhoAmICommand(),
		a.newListCommand(),
		a.newDeleteCommand(),
		a.newExportCommand(),
	)
	return cmd
}

// reviewSession bundles the admin flow with the client it runs over.
type reviewSession struct {
	client *apiclient.Client
	flow   *adminreview.Flow
	loc    *time.Location
}

func (a *app) openReview() (*reviewSession, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	s := a.settings()
	loc, err := export.LoadLocation(s.TimeZone)
	if err != nil {
		return nil, err
	}
	// An empty name falls back to the default sheet name.
	exp := export.NewExporter(s.CampaignName, loc, clock.NewSystemClock())
	return &reviewSession{
		client: c,
		flow:   adminreview.New(c.Sessions(), c, exp),
		loc:    loc,
	}, nil
}

// requireSession checks the stored session and loads claims.
func (a *app) requireSession(cmd *cobra.Command) (*reviewSession, error) {
	rs, err := a.openReview()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.context(cmd)
	defer cancel()
	if err := rs.flow.CheckSession(ctx); err != nil {
		rs.flow.Close()
		return nil, err
	}
	if _, ok := rs.flow.Session(); !ok {
		rs.flow.Close()
		return nil, errors.New(`not logged in: run "claimctl admin login"`)
	}
	if msg := rs.flow.ErrorMessage(); msg != "" {
		rs.flow.Close()
		return nil, errors.New(msg)
	}
	return rs, nil
}

func (a *app) newLoginCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as an admin and store the session",
		Long: `Login signs in with email and password. The password is read from --password,
then ` + passwordEnv + `, and otherwise prompted for.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := a.openReview()
			if err != nil {
				return err
			}
			defer rs.flow.Close()

			if strings.TrimSpace(email) == "" {
				if email, err = a.prompt("Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if password == "" {
				if password, err = a.prompt("Password: "); err != nil {
					return err
				}
			}

			ctx, cancel := a.context(cmd)
			defer cancel()
			if err := rs.flow.Login(ctx, strings.TrimSpace(email), password); err != nil {
				if _, ok := rs.flow.Session(); !ok {
					if msg := rs.flow.AuthError(); msg != "" {
						return errors.New(msg)
					}
					return err
				}
				// Signed in but the first load failed; the session is still stored.
				fmt.Fprintf(a.err, "warning: %s\n", rs.flow.ErrorMessage())
			}
			s, _ := rs.flow.Session()
			fmt.Fprintf(a.out, "Logged in as %s\n", s.User.Email)
			if !rs.flow.NotConfigured() && rs.flow.ErrorMessage() == "" {
				st := rs.flow.Stats()
				fmt.Fprintf(a.out, "%d claims from %d organizations\n", st.Total, st.Organizations)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "admin email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "admin password (prefer "+passwordEnv+" or the prompt)")
	return cmd
}

func (a *app) newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the admin session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := a.openReview()
			if err != nil {
				return err
			}
			defer rs.flow.Close()

			ctx, cancel := a.context(cmd)
			defer cancel()
			if err := rs.flow.Logout(ctx); err != nil {
				if msg := rs.flow.AuthError(); msg != "" {
					return errors.New(msg)
				}
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func (a *app) newWhoAmICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in admin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := a.openReview()
			if err != nil {
				return err
			}
			defer rs.flow.Close()

			ctx, cancel := a.context(cmd)
			defer cancel()
			s, ok, err := rs.client.Sessions().Session(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(a.out, "Not logged in")
				return nil
			}
			fmt.Fprintf(a.out, "%s (%s)\n", s.User.Email, s.User.ID)
			if !s.ExpiresAt.IsZero() {
				fmt.Fprintf(a.out, "session expires %s\n", export.FormatTimestamp(&s.ExpiresAt, rs.loc))
			}
			return nil
		},
	}
}

func (a *app) newListCommand() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List claims, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := a.requireSession(cmd)
			if err != nil {
				return err
			}
			defer rs.flow.Close()

			rs.flow.Search(query)
			rows := rs.flow.Rows()
			st := rs.flow.Stats()

			fmt.Fprintf(a.out, "Total claim: %d   Divisi: %d\n\n", st.Total, st.Organizations)
			if len(rows) == 0 {
				fmt.Fprintln(a.out, "Tidak ada data.")
				return nil
			}
			writeClaimTable(a.out, rows, rs.loc)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "case-insensitive search over organization and email")
	return cmd
}

func writeClaimTable(out io.Writer, rows []domain.Claim, loc *time.Location) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NO\tDIVISI\tEMAIL\tTANGGAL\tID")
	for i, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, r.Organization, r.Email, export.FormatTimestamp(r.CreatedAt, loc), r.ID)
	}
	_ = tw.Flush()
}

func (a *app) newDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <claim-id>",
		Short: "Delete one claim so its organization can claim again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := a.requireSession(cmd)
			if err != nil {
				return err
			}
			defer rs.flow.Close()

			id := domain.ClaimID(strings.TrimSpace(args[0]))
			found := false
			for _, r := range rs.flow.Rows() {
				if r.ID == id {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("claim %q not found", id)
			}

			confirmed := false
			confirm := func(prompt string, _ domain.Claim) bool {
				if yes {
					confirmed = true
					return true
				}
				answer, err := a.prompt(prompt + " [y/N]: ")
				if err != nil {
					return false
				}
				answer = strings.ToLower(strings.TrimSpace(answer))
				confirmed = answer == "y" || answer == "yes" || answer == "ya"
				return confirmed
			}

			ctx, cancel := a.context(cmd)
			defer cancel()
			if err := rs.flow.Delete(ctx, id, confirm); err != nil {
				if msg := rs.flow.ErrorMessage(); msg != "" {
					return errors.New(msg)
				}
				return err
			}
			if !confirmed {
				fmt.Fprintln(a.out, "Cancelled")
				return nil
			}
			fmt.Fprintf(a.out, "Deleted %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func (a *app) newExportCommand() *cobra.Command {
	var query, out string
	var server bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the listed claims to an .xlsx file",
		Long: `Export writes the claims matching --query to a spreadsheet named
claim-canva-YYYY-MM-DD.xlsx in the current directory (or --out). With --server the
file is built by the API instead of locally.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := a.requireSession(cmd)
			if err != nil {
				return err
			}
			defer rs.flow.Close()

			tmp, err := os.CreateTemp(exportDir(out), ".claim-export-*")
			if err != nil {
				return err
			}
			defer os.Remove(tmp.Name())

			var name string
			var ok bool
			if server {
				ctx, cancel := a.context(cmd)
				defer cancel()
				name, ok, err = rs.client.Export(ctx, query, tmp)
			} else {
				rs.flow.Search(query)
				name, ok, err = rs.flow.Export(tmp)
			}
			if cerr := tmp.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(a.out, "Nothing to export")
				return nil
			}

			dest := exportPath(out, name)
			if err := os.Rename(tmp.Name(), dest); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Wrote %s\n", dest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "only export claims matching this search")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file or directory")
	cmd.Flags().BoolVar(&server, "server", false, "build the file on the server")
	return cmd
}

// exportDir is the directory the export is staged in so the final rename stays on one filesystem.
func exportDir(out string) string {
	if out == "" {
		return "."
	}
	if fi, err := os.Stat(out); err == nil && fi.IsDir() {
		return out
	}
	return filepath.Dir(out)
}

func exportPath(out, name string) string {
	if out == "" {
		return name
	}
	if fi, err := os.Stat(out); err == nil && fi.IsDir() {
		return filepath.Join(out, name)
	}
	return out
}
