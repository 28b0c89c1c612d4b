package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dicteo/dicteo/internal/config"
	"github.com/dicteo/dicteo/pkg/identity"
	"github.com/dicteo/dicteo/pkg/transcribe"
)

// Activation codes avoid 0/O and 1/I so they survive being read over the
// phone.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

var (
	accountEmail     string
	accountFirstName string
	accountLastName  string
	accountLanguage  string
	accountDays      int
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage practitioner accounts",
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Provision an account and print its activation code",
	RunE:  runAccountsAdd,
}

var accountsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete accounts whose activation expired past the grace period",
	RunE:  runAccountsPurge,
}

func init() {
	accountsAddCmd.Flags().StringVar(&accountEmail, "email", "", "practitioner email (required)")
	accountsAddCmd.Flags().StringVar(&accountFirstName, "first-name", "", "first name")
	accountsAddCmd.Flags().StringVar(&accountLastName, "last-name", "", "last name")
	accountsAddCmd.Flags().StringVar(&accountLanguage, "language", string(transcribe.DefaultLanguage), "preferred dictation language")
	accountsAddCmd.Flags().IntVar(&accountDays, "days", 365, "activation validity in days")
	_ = accountsAddCmd.MarkFlagRequired("email")

	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsPurgeCmd)
	rootCmd.AddCommand(accountsCmd)
}

func openStore() (*identity.SQLiteStore, *config.Config, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := identity.NewSQLiteStore(cfg.Identity.DBPath, zerolog.Nop())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open identity store: %w", err)
	}
	return store, cfg, nil
}

// NewActivationCode generates a readable activation code of the form
// DICT-XXXX-XXXX.
func NewActivationCode() (string, error) {
	raw, err := gonanoid.Generate(codeAlphabet, 8)
	if err != nil {
		return "", fmt.Errorf("failed to generate activation code: %w", err)
	}
	return fmt.Sprintf("DICT-%s-%s", raw[:4], raw[4:]), nil
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	if _, ok := transcribe.ParseLanguage(accountLanguage); !ok {
		return fmt.Errorf("unsupported language %q (supported: %s)",
			accountLanguage, strings.Join(languageCodes(), ", "))
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	code, err := NewActivationCode()
	if err != nil {
		return err
	}

	expiresAt := time.Now().AddDate(0, 0, accountDays)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = store.CreateAccount(ctx, identity.Identity{
		Email:     accountEmail,
		FirstName: accountFirstName,
		LastName:  accountLastName,
		Language:  accountLanguage,
		Active:    true,
	}, code, expiresAt)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Account created: %s\n", strings.ToLower(strings.TrimSpace(accountEmail)))
	fmt.Fprintf(out, "Activation code: %s\n", code)
	fmt.Fprintf(out, "Expires: %s\n", expiresAt.Format("2006-01-02"))
	return nil
}

func runAccountsPurge(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	grace := time.Duration(cfg.Identity.PurgeGraceDays) * 24 * time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := store.PurgeExpired(ctx, grace)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired account(s)\n", n)
	return nil
}

func languageCodes() []string {
	langs := transcribe.SupportedLanguages()
	codes := make([]string, len(langs))
	for i, l := range langs {
		codes[i] = string(l)
	}
	return codes
}
