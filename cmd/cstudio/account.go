package main

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/cipherstudio/cipherstudio/internal/studio/auth"
	"github.com/cipherstudio/cipherstudio/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login [owner]",
	GroupID: "account",
	Short:   "Store an identity token for an owner",
	Long: `Issue a signed identity token for owner and store it in the token file
(auth.token_file, default ~/.cstudio/token).

Every project operation runs as the owner in the stored token. Without an
argument the current OS user name is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner := ""
		if len(args) == 1 {
			owner = args[0]
		} else if u, err := user.Current(); err == nil {
			owner = u.Username
		}
		if owner == "" {
			return fmt.Errorf("owner is required")
		}

		issuer, err := state.issuer()
		if err != nil {
			return err
		}
		tok, expires, err := issuer.Issue(owner)
		if err != nil {
			return err
		}
		if err := auth.SaveToken(state.cfg.Auth.TokenFile, tok); err != nil {
			return err
		}

		fmt.Printf("%s Logged in as %s\n", ui.RenderPass("✓"), ui.RenderAccent(owner))
		fmt.Printf("   Token expires %s\n", expires.Local().Format("2006-01-02 15:04"))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "account",
	Short:   "Remove the stored identity token",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.RemoveToken(state.cfg.Auth.TokenFile); err != nil {
			return err
		}
		fmt.Printf("%s Logged out\n", ui.RenderPass("✓"))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "account",
	Short:   "Show the owner of the stored token",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		claims, err := currentClaims()
		if err != nil {
			return err
		}
		fmt.Println(claims.OwnerID)
		if claims.ExpiresAt != nil {
			fmt.Fprintf(os.Stderr, "%s\n", ui.RenderMuted("expires in "+time.Until(claims.ExpiresAt.Time).Round(time.Minute).String()))
		}
		return nil
	},
}

func currentClaims() (*auth.Claims, error) {
	issuer, err := state.issuer()
	if err != nil {
		return nil, err
	}
	tok, err := auth.LoadToken(state.cfg.Auth.TokenFile)
	if err != nil {
		return nil, err
	}
	return issuer.Verify(tok)
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
