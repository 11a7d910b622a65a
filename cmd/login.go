package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tw1nflame/chat-langchain/internal"
)

var (
	loginEmail    string
	loginPassword string
)

// loginCmd stores a credential for later commands
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and cache the credential",
	Long: `Sign in to the backend and cache the credential in the cache directory.

Either pass a bearer token with --token, or sign in with --email and
--password when supabase_url and supabase_anon_key are configured. The
password is read from stdin when the flag is omitted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := internal.NewCredentialCache(cfg.CacheDir)

		if apiToken != "" {
			if err := internal.NewTokenProvider("", creds).SignIn(apiToken); err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
			internal.PrintSuccess(fmt.Sprintf("Token %s cached in %s", internal.RedactToken(apiToken), creds.GetPath()))
			return nil
		}

		if loginEmail == "" {
			return fmt.Errorf("either --token or --email is required")
		}
		if !cfg.UseSupabase() {
			return fmt.Errorf("password sign-in needs supabase_url and supabase_anon_key in the config")
		}

		password := loginPassword
		if password == "" {
			fmt.Fprint(cmd.OutOrStdout(), "Password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		provider := internal.NewSupabaseProvider(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.Timeout(), creds)
		var session *internal.AuthSession
		err := internal.ShowProgress(cmd.Context(), "Signing in", func() error {
			var err error
			session, err = provider.SignInWithPassword(cmd.Context(), loginEmail, password)
			return err
		})
		if err != nil {
			return fmt.Errorf("sign-in failed: %w", err)
		}

		who := session.User.Email
		if who == "" {
			who = session.User.ID
		}
		internal.PrintSuccess(fmt.Sprintf("Signed in as %s", who))
		return nil
	},
}

// logoutCmd forgets the cached credential
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the cached credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := newApp()
		defer app.Close()

		if err := app.SignOut(cmd.Context()); err != nil {
			return fmt.Errorf("failed to sign out: %w", err)
		}
		internal.PrintSuccess("Signed out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Email for password sign-in")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password for password sign-in")
}
