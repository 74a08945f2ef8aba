// Package cli implements claimctl, the operator's command line for the claim API.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kominfo-unma/canva-claim-api/internal/adapters/apiclient"
	"github.com/kominfo-unma/canva-claim-api/internal/app/export"
	"github.com/kominfo-unma/canva-claim-api/internal/platform/config"
)

const envPrefix = "CLAIMCTL"

var version = "dev"

// Settings is claimctl's resolved configuration.
type Settings struct {
	APIURL      string
	AdminPath   string
	SessionFile string
	TimeZone    string
	Timeout     time.Duration

	// CampaignName names the sheet of locally built exports.
	CampaignName string
}

type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool

	in  *bufio.Reader
	out io.Writer
	err io.Writer
}

// Execute runs claimctl with the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds a fresh command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "claimctl",
		Short: "Claim Canva Pro - submit claims and review them as an admin",
		Long: `claimctl talks to the claim API.

Anyone can list the organizations still available and submit a claim. Admin
commands need a session: run "claimctl admin login" first. The session token is
kept in the session file until it expires or you log out.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.in = bufio.NewReader(cmd.InOrStdin())
			a.out = cmd.OutOrStdout()
			a.err = cmd.ErrOrStderr()
			return a.initConfig()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.claimctl/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().String("api-url", "http://localhost:8080", "claim API base URL")
	root.PersistentFlags().String("admin-path", config.DefaultAdminPath, "the server's ADMIN_PATH")
	root.PersistentFlags().String("session-file", "", "where the admin session is stored (default: $HOME/.claimctl/session.json)")
	root.PersistentFlags().String("time-zone", export.DefaultTimeZone, "time zone for displayed dates")
	root.PersistentFlags().Duration("timeout", 15*time.Second, "per-request timeout")
	root.PersistentFlags().String("campaign-name", export.DefaultSheetName, "sheet name for locally built exports")

	for key, flag := range map[string]string{
		"api_url":       "api-url",
		"admin_path":    "admin-path",
		"session_file":  "session-file",
		"time_zone":     "time-zone",
		"timeout":       "timeout",
		"campaign_name": "campaign-name",
	} {
		_ = a.v.BindPFlag(key, root.PersistentFlags().Lookup(flag))
	}

	root.AddCommand(
		a.newVersionCommand(),
		a.newViewCommand(),
		a.newOrganizationsCommand(),
		a.newSubmitCommand(),
		a.newAdminCommand(),
		a.newConfigCommand(),
	)
	return root
}

// initConfig layers CLAIMCTL_* environment variables and the config file over the flags.
func (a *app) initConfig() error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", a.cfgFile, err)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		a.v.AddConfigPath(filepath.Join(home, ".claimctl"))
		a.v.SetConfigType("yaml")
		a.v.SetConfigName("config")
		// A missing default config file is fine; a broken one is not.
		if err := a.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("read config: %w", err)
			}
		}
	}
	if a.verbose && a.v.ConfigFileUsed() != "" {
		fmt.Fprintf(a.err, "Using config file: %s\n", a.v.ConfigFileUsed())
	}
	return nil
}

func (a *app) settings() Settings {
	s := Settings{
		APIURL:      strings.TrimSpace(a.v.GetString("api_url")),
		AdminPath:   config.NormalizePath(a.v.GetString("admin_path")),
		SessionFile: strings.TrimSpace(a.v.GetString("session_file")),
		TimeZone:    strings.TrimSpace(a.v.GetString("time_zone")),
		Timeout:     a.v.GetDuration("timeout"),

		CampaignName: strings.TrimSpace(a.v.GetString("campaign_name")),
	}
	if s.SessionFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			s.SessionFile = filepath.Join(home, ".claimctl", "session.json")
		}
	}
	return s
}

func (a *app) client() (*apiclient.Client, error) {
	s := a.settings()
	opts := []apiclient.Option{apiclient.WithAdminPath(s.AdminPath)}
	if s.SessionFile != "" {
		opts = append(opts, apiclient.WithSessionStore(apiclient.NewFileSessionStore(s.SessionFile)))
	}
	return apiclient.New(s.APIURL, opts...)
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := a.settings().Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

// prompt writes label and reads one line from stdin.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.err, label)
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(a.out, "claimctl %s\n", version)
		},
	}
}
