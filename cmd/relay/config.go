package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/relay/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify relay configuration.

Without arguments, displays the effective configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the value in the user config file.

Configuration is stored at ~/.config/relay/config.yaml
Project-specific overrides can be placed in .relay.yaml
Executors and tools are edited in the files directly.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch len(args) {
		case 0:
			displayAllConfig(cfg)
			return nil
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		default:
			// Save from the user file alone so project overrides are not copied into it.
			userCfg := config.Default()
			if _, err := os.Stat(config.GetUserConfigPath()); err == nil {
				loaded, err := config.LoadFromPath(config.GetUserConfigPath())
				if err != nil {
					return err
				}
				userCfg = loaded
			}
			if err := setConfigValue(userCfg, args[0], args[1]); err != nil {
				return err
			}
			if err := userCfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(userCfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			printStatus("✓", fmt.Sprintf("Set %s = %s", args[0], args[1]), color.FgGreen)
			return nil
		}
	},
}

type configKey struct {
	get func(*config.Config) string
	set func(*config.Config, string) error
}

func parseBool(dst *bool) func(*config.Config, string) error {
	return func(_ *config.Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		*dst = b
		return nil
	}
}

// configKeys lists the scalar settings reachable from `relay config`.
func configKeys(cfg *config.Config) map[string]configKey {
	str := func(p *string) configKey {
		return configKey{
			get: func(*config.Config) string { return *p },
			set: func(_ *config.Config, v string) error { *p = v; return nil },
		}
	}
	return map[string]configKey{
		"log.level":             str(&cfg.Log.Level),
		"log.file":              str(&cfg.Log.File),
		"anthropic.model":       str(&cfg.Anthropic.Model),
		"anthropic.aws_region":  str(&cfg.Anthropic.AWSRegion),
		"anthropic.aws_profile": str(&cfg.Anthropic.AWSProfile),
		"anthropic.api_key": {
			get: func(c *config.Config) string { return config.MaskAPIKey(c.Anthropic.APIKey) },
			set: func(c *config.Config, v string) error { c.Anthropic.APIKey = v; return nil },
		},
		"anthropic.max_tokens": {
			get: func(c *config.Config) string { return strconv.FormatInt(c.Anthropic.MaxTokens, 10) },
			set: func(c *config.Config, v string) error {
				n, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid value for max_tokens: %w", err)
				}
				c.Anthropic.MaxTokens = n
				return nil
			},
		},
		"anthropic.use_bedrock": {
			get: func(c *config.Config) string { return strconv.FormatBool(c.Anthropic.UseBedrock) },
			set: parseBool(&cfg.Anthropic.UseBedrock),
		},
		"executors_file":    str(&cfg.ExecutorsFile),
		"orchestrator.mode": str(&cfg.Orchestrator.Mode),
		"orchestrator.max_parallel": {
			get: func(c *config.Config) string { return strconv.Itoa(c.Orchestrator.MaxParallel) },
			set: func(c *config.Config, v string) error {
				n, err := strconv.Atoi(v)
				if err != nil {
					return fmt.Errorf("invalid value for max_parallel: %w", err)
				}
				c.Orchestrator.MaxParallel = n
				return nil
			},
		},
		"journal.enabled": {
			get: func(c *config.Config) string { return strconv.FormatBool(c.Journal.Enabled) },
			set: parseBool(&cfg.Journal.Enabled),
		},
		"journal.path":     str(&cfg.Journal.Path),
		"server.addr":      str(&cfg.Server.Addr),
		"server.base_path": str(&cfg.Server.BasePath),
		"timeouts.http": {
			get: func(c *config.Config) string { return c.Timeouts.HTTP.String() },
			set: func(c *config.Config, v string) error {
				d, err := time.ParseDuration(v)
				if err != nil {
					return fmt.Errorf("invalid duration for timeouts.http: %w", err)
				}
				c.Timeouts.HTTP = d
				return nil
			},
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	k, ok := configKeys(cfg)[strings.ToLower(key)]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return k.get(cfg), nil
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	k, ok := configKeys(cfg)[strings.ToLower(key)]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return k.set(cfg, value)
}

// displayAllConfig prints all scalar settings, then executors and tools.
func displayAllConfig(cfg *config.Config) {
	keys := configKeys(cfg)
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: %s\n", name, keys[name].get(cfg))
	}

	_, source, _ := config.ResolveAPIKey(cfg)
	fmt.Printf("anthropic.key_source: %s\n", source)

	fmt.Printf("executors: %d\n", len(cfg.Executors))
	for _, e := range cfg.Executors {
		kind := e.Kind
		if kind == "" {
			kind = "claude"
		}
		fmt.Printf("  - %s [%s] %s\n", e.ID, kind, strings.Join(e.Capabilities, ","))
	}
	tools := make([]string, 0, len(cfg.Tools))
	for name := range cfg.Tools {
		tools = append(tools, name)
	}
	sort.Strings(tools)
	fmt.Printf("tools: %s\n", strings.Join(tools, ", "))

	fmt.Printf("\nuser config: %s\n", config.GetUserConfigPath())
	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Printf("project config: %s\n", p)
	}
}
