package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"draftflow/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up encrypted API credentials",
	Long: `Set up encrypted API credentials.

Prompts for model provider API keys and stores them encrypted under
~/.draftflow/secrets.json.enc. The serve command decrypts them at startup
using the same password (or DRAFTFLOW_PASSWORD).`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runInit()
	},
}

func runInit() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	if config.SecretsFileExists(home) {
		fmt.Print("Secrets file already exists. Overwrite? [y/N]: ")
		var answer string
		fmt.Scanln(&answer)
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	password, err := promptForPassword()
	if err != nil {
		return err
	}

	secrets := make(map[string]string)
	scanner := bufio.NewScanner(os.Stdin)
	for _, key := range []string{
		config.EnvAnthropicAPIKey,
		config.EnvOpenAIAPIKey,
		config.EnvGeminiAPIKey,
	} {
		fmt.Printf("Enter %s (optional, press Enter to skip): ", key)
		if !scanner.Scan() {
			break
		}
		if value := strings.TrimSpace(scanner.Text()); value != "" {
			secrets[key] = value
		}
	}
	if len(secrets) == 0 {
		fmt.Println("No keys entered; nothing to save.")
		return nil
	}

	if err := config.EncryptSecretsFile(home, password, secrets); err != nil {
		return fmt.Errorf("failed to encrypt secrets: %w", err)
	}

	fmt.Println("Credentials saved to ~/.draftflow/secrets.json.enc (file permissions: 0600)")
	return nil
}

// promptForPassword prompts for a password with confirmation.
func promptForPassword() (string, error) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Print("Enter a password for your credentials: ")
		password1, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		fmt.Print("Confirm password: ")
		password2, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		if !bytes.Equal(password1, password2) {
			if attempt < maxAttempts {
				fmt.Println("Passwords do not match. Please try again.")
				continue
			}
			return "", fmt.Errorf("passwords do not match after %d attempts", maxAttempts)
		}

		password := string(password1)
		for i := range password1 {
			password1[i] = 0
		}
		for i := range password2 {
			password2[i] = 0
		}
		return password, nil
	}
	return "", fmt.Errorf("failed to get matching passwords")
}
