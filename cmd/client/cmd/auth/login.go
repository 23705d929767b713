package auth

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"posclient/cmd/client/cmd/cliutil"
)

var LoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save an ERP API key pair",
	Long: `login asks for the API key and secret of the register user, checks them
against the backend and stores them in the config directory.

Credentials from the environment (ERP_API_KEY, ERP_API_SECRET) take precedence
over the stored pair.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := cliutil.App(cmd)
		if err != nil {
			return err
		}

		fmt.Print("API key: ")
		key, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read api key: %w", err)
		}

		fmt.Print("API secret: ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("read api secret: %w", err)
		}
		fmt.Println()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		user, err := app.Login(ctx, strings.TrimSpace(key), strings.TrimSpace(string(secret)))
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}

		cliutil.Success("logged in as %s", user)
		return nil
	},
}
