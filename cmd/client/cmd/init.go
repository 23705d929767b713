package cmd

import (
	"posclient/cmd/client/cmd/auth"
	"posclient/cmd/client/cmd/outbox"
	"posclient/cmd/client/cmd/returns"
	"posclient/cmd/client/cmd/session"
	"posclient/cmd/client/cmd/sync"
)

func init() {
	rootCmd.AddCommand(auth.AuthCmd)
	auth.AuthCmd.AddCommand(auth.LoginCmd)
	auth.AuthCmd.AddCommand(auth.WhoAmICmd)

	rootCmd.AddCommand(sync.SyncCmd)

	rootCmd.AddCommand(outbox.OutboxCmd)
	outbox.OutboxCmd.AddCommand(outbox.PushCmd)
	outbox.OutboxCmd.AddCommand(outbox.ListCmd)
	outbox.OutboxCmd.AddCommand(outbox.PruneCmd)
	outbox.OutboxCmd.AddCommand(outbox.AddCustomerCmd)

	rootCmd.AddCommand(session.SessionCmd)
	session.SessionCmd.AddCommand(session.OpenCmd)
	session.SessionCmd.AddCommand(session.CloseCmd)
	session.SessionCmd.AddCommand(session.ReconcileCmd)
	session.SessionCmd.AddCommand(session.PushCmd)

	rootCmd.AddCommand(returns.ReturnCmd)

	rootCmd.AddCommand(serveCmd)
}
