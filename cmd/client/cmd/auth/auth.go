package auth

import (
	"github.com/spf13/cobra"
)

// AuthCmd groups the commands that manage ERP API credentials.
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage ERP API credentials",
	Long:  `Save and check the API key pair used to talk to the ERP backend.`,
}
