package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/scopes/internal/config"
	"github.com/marcus/scopes/internal/output"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// validConfigKeys lists the supported config keys for set/get.
var validConfigKeys = []string{
	"user",
	"listen_addr",
	"db_path",
	"db_driver",
	"github_api_url",
	"github_graphql_url",
	"http_timeout",
	"log_format",
	"log_level",
	"rate_limit_github",
}

func isValidConfigKey(key string) bool {
	for _, k := range validConfigKeys {
		if k == key {
			return true
		}
	}
	return false
}

func unknownKey(key string) error {
	output.Error("unknown config key: %s", key)
	fmt.Println("Valid keys:", strings.Join(validConfigKeys, ", "))
	return fmt.Errorf("unknown config key: %s", key)
}

// setConfigValue parses val into the field named by key.
func setConfigValue(c *config.Config, key, val string) error {
	switch key {
	case "user":
		c.User = val
	case "listen_addr":
		c.ListenAddr = val
	case "db_path":
		c.DBPath = val
	case "db_driver":
		if val != config.DriverModernc && val != config.DriverCgo {
			return fmt.Errorf("db_driver must be %s or %s", config.DriverModernc, config.DriverCgo)
		}
		c.DBDriver = val
	case "github_api_url":
		c.GitHubAPIURL = strings.TrimRight(val, "/")
	case "github_graphql_url":
		c.GitHubGraphQLURL = val
	case "http_timeout":
		d, err := time.ParseDuration(val)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid duration %q", val)
		}
		c.HTTPTimeout = d
	case "log_format":
		c.LogFormat = val
	case "log_level":
		c.LogLevel = val
	case "rate_limit_github":
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid int value %q", val)
		}
		c.RateLimitGitHub = n
	}
	return nil
}

func getConfigValue(c config.Config, key string) string {
	switch key {
	case "user":
		return c.User
	case "listen_addr":
		return c.ListenAddr
	case "db_path":
		return c.DBPath
	case "db_driver":
		return c.DBDriver
	case "github_api_url":
		return c.GitHubAPIURL
	case "github_graphql_url":
		return c.GitHubGraphQLURL
	case "http_timeout":
		return c.HTTPTimeout.String()
	case "log_format":
		return c.LogFormat
	case "log_level":
		return c.LogLevel
	case "rate_limit_github":
		return strconv.Itoa(c.RateLimitGitHub)
	}
	return ""
}

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage scopes configuration",
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value in the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if !isValidConfigKey(key) {
			return unknownKey(key)
		}

		var setErr error
		err := config.Update(config.Path(), func(c *config.Config) {
			setErr = setConfigValue(c, key, val)
		})
		if setErr != nil {
			output.Error("%v", setErr)
			return setErr
		}
		if err != nil {
			output.Error("save config: %v", err)
			return err
		}

		output.Success("set %s = %s", key, val)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get the effective config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isValidConfigKey(args[0]) {
			return unknownKey(args[0])
		}
		fmt.Println(getConfigValue(cfg, args[0]))
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"show"},
	Short:   "Show the merged configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := cfg
		if shown.AppSecret != "" {
			shown.AppSecret = "********"
		}
		data, err := yaml.Marshal(shown)
		if err != nil {
			output.Error("marshal config: %v", err)
			return err
		}
		fmt.Printf("# %s (+ SCOPES_* environment)\n", config.Path())
		fmt.Print(string(data))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.Path())
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}
