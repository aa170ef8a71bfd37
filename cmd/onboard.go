package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/salebot/internal/config"
)

func onboardCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup: writes the config file and a .env with secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard(resolveConfigPath(), ".env", force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

// onboardAnswers collects the wizard input before it is applied to a config.
type onboardAnswers struct {
	Provider   string
	APIKey     string
	RedisURL   string
	Driver     string
	DSN        string
	Port       string
	Businesses string
	DefaultID  string
	AdminToken string
}

func runOnboard(cfgPath, envPath string, force bool) error {
	if _, err := os.Stat(cfgPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
	}

	def := config.Default()
	a := onboardAnswers{
		Provider:   def.Providers.Default,
		RedisURL:   def.Redis.URL,
		Driver:     def.Database.Driver,
		DSN:        def.Database.DSN,
		Port:       strconv.Itoa(def.Gateway.Port),
		Businesses: def.Businesses.Dir,
		DefaultID:  def.Businesses.DefaultID,
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("LLM provider for the agent layer").
				Options(huh.NewOption("OpenAI", "openai"), huh.NewOption("Anthropic", "anthropic")).
				Value(&a.Provider),
			huh.NewInput().
				Title("API key (leave empty to run rule layers only)").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey),
		),
		huh.NewGroup(
			huh.NewInput().Title("Redis URL").Value(&a.RedisURL),
			huh.NewSelect[string]().
				Title("Usage ledger database").
				Options(huh.NewOption("SQLite file", "sqlite"), huh.NewOption("PostgreSQL", "postgres")).
				Value(&a.Driver),
			huh.NewInput().
				Title("SQLite path or PostgreSQL DSN").
				Value(&a.DSN),
		),
		huh.NewGroup(
			huh.NewInput().Title("HTTP port").Value(&a.Port).Validate(validatePort),
			huh.NewInput().Title("Businesses directory").Value(&a.Businesses),
			huh.NewInput().Title("Default business id").Value(&a.DefaultID),
			huh.NewInput().
				Title("Admin bearer token (protects /admin)").
				EchoMode(huh.EchoModePassword).
				Value(&a.AdminToken),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("onboard: %w", err)
	}

	cfg, env := a.apply(def)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(cfgPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("wrote %s\n", cfgPath)

	if len(env) > 0 {
		if err := godotenv.Write(env, envPath); err != nil {
			return fmt.Errorf("write %s: %w", envPath, err)
		}
		os.Chmod(envPath, 0o600)
		fmt.Printf("wrote %s (secrets)\n", envPath)
	}
	fmt.Println("next: salebot migrate up && salebot")
	return nil
}

// apply copies the answers onto cfg and returns the secrets that belong in
// the environment rather than the config file.
func (a onboardAnswers) apply(cfg *config.Config) (*config.Config, map[string]string) {
	env := make(map[string]string)
	cfg.Providers.Default = a.Provider
	if a.APIKey != "" {
		if a.Provider == "anthropic" {
			env["SALEBOT_ANTHROPIC_API_KEY"] = a.APIKey
		} else {
			env["SALEBOT_OPENAI_API_KEY"] = a.APIKey
		}
	}
	cfg.Redis.URL = a.RedisURL
	cfg.Database.Driver = a.Driver
	if a.Driver == "postgres" {
		cfg.Database.DSN = ""
		if a.DSN != "" {
			env["SALEBOT_DATABASE_DSN"] = a.DSN
		}
	} else {
		cfg.Database.DSN = a.DSN
	}
	if p, err := strconv.Atoi(a.Port); err == nil {
		cfg.Gateway.Port = p
	}
	cfg.Businesses.Dir = a.Businesses
	cfg.Businesses.DefaultID = a.DefaultID
	if a.AdminToken != "" {
		env["SALEBOT_GATEWAY_TOKEN"] = a.AdminToken
	}
	return cfg, env
}

func validatePort(s string) error {
	p, err := strconv.Atoi(s)
	if err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("port must be 1-65535")
	}
	return nil
}
