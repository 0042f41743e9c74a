package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thruflo/remoteui/internal/auth"
	"github.com/thruflo/remoteui/internal/config"
)

var hashConfigPath string

// passwordPrompter reads passwords for hash-password. Tests replace it.
var passwordPrompter auth.Prompter

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password for the web viewer",
	Long: `Prompts for a password twice and prints its argon2id hash. With --config the
hash is stored as server.password_hash in that file instead, which protects
the web listener of servers started with it.`,
	Args: cobra.NoArgs,
	RunE: runHashPassword,
}

func init() {
	hashPasswordCmd.Flags().StringVarP(&hashConfigPath, "config", "c", "", "yaml config file to store the hash in")
	rootCmd.AddCommand(hashPasswordCmd)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	prompt := passwordPrompter
	if prompt == nil {
		prompt = auth.TerminalPrompter(os.Stdin, cmd.ErrOrStderr())
	}

	password, err := auth.PromptAndConfirmPassword(prompt)
	if err != nil {
		return fmt.Errorf("password setup failed: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if hashConfigPath == "" {
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	}

	cfg, err := config.LoadConfig(hashConfigPath)
	if err != nil {
		return err
	}
	cfg.Server.PasswordHash = hash
	if err := config.SaveConfig(hashConfigPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Password hash saved to %s\n", hashConfigPath)
	return nil
}
