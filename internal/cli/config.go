package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fileSettings is the on-disk shape of the config file. Keys match the viper keys.
type fileSettings struct {
	APIURL       string `yaml:"api_url"`
	AdminPath    string `yaml:"admin_path"`
	SessionFile  string `yaml:"session_file,omitempty"`
	TimeZone     string `yaml:"time_zone"`
	Timeout      string `yaml:"timeout"`
	CampaignName string `yaml:"campaign_name"`
}

func toFileSettings(s Settings) fileSettings {
	return fileSettings{
		APIURL:       s.APIURL,
		AdminPath:    s.AdminPath,
		SessionFile:  s.SessionFile,
		TimeZone:     s.TimeZone,
		Timeout:      s.Timeout.String(),
		CampaignName: s.CampaignName,
	}
}

func (a *app) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the claimctl configuration",
		Long: `Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (CLAIMCTL_API_URL, CLAIMCTL_ADMIN_PATH, ...)
3. Config file (~/.claimctl/config.yaml)
4. Defaults`,
	}
	cmd.AddCommand(a.newConfigShowCommand(), a.newConfigInitCommand())
	return cmd
}

func (a *app) newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if used := a.v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(a.err, "Configuration file: %s\n", used)
			} else {
				fmt.Fprintln(a.err, "No configuration file found (using flags, environment and defaults)")
			}
			data, err := yaml.Marshal(toFileSettings(a.settings()))
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = a.out.Write(data)
			return err
		},
	}
}

func (a *app) newConfigInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfgFile
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("find home directory: %w", err)
				}
				path = filepath.Join(home, ".claimctl", "config.yaml")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			data, err := yaml.Marshal(toFileSettings(a.settings()))
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
