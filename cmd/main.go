package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adanyl0v/go-task-tracker/internal/app"
)

var rootCmd = &cobra.Command{
	Use:   "go-task-tracker",
	Short: "Role-scoped task workflow with an audit trail",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		app.InitDefaultLogger()
		app.MustReadEnv()
		app.MustInitApplicationLogger()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		app.MustConnectPostgres()
		defer app.DisconnectPostgres()

		app.MustConnectRedis()
		defer app.DisconnectRedis()

		app.MustInitServices()
		app.StartBackgroundJobs()
		defer app.StopBackgroundJobs()

		app.MustListenAndServeHTTP()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Run: func(cmd *cobra.Command, args []string) {
		app.MustMigrateUp()
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Run: func(cmd *cobra.Command, args []string) {
		steps, _ := cmd.Flags().GetInt("steps")
		app.MustMigrateDown(steps)
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log maintenance",
}

var auditCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete low and medium severity entries past retention",
	Run: func(cmd *cobra.Command, args []string) {
		app.MustConnectPostgres()
		defer app.DisconnectPostgres()
		app.MustInitServices()

		days, _ := cmd.Flags().GetInt("retention-days")
		app.MustCleanupAudit(days)
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Account bootstrap",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a super admin",
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("ADMIN_PASSWORD")
		}

		app.MustConnectPostgres()
		defer app.DisconnectPostgres()
		app.MustInitServices()

		app.MustCreateSuperAdmin(name, email, password)
	},
}

func init() {
	migrateDownCmd.Flags().Int("steps", 1, "Number of migrations to roll back, 0 rolls back all")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)

	auditCleanupCmd.Flags().Int("retention-days", 0, "Retention in days (defaults to AUDIT_RETENTION)")
	auditCmd.AddCommand(auditCleanupCmd)

	adminCreateCmd.Flags().String("name", "Administrator", "Display name")
	adminCreateCmd.Flags().String("email", "", "Login email")
	adminCreateCmd.Flags().String("password", "", "Password (defaults to ADMIN_PASSWORD)")
	_ = adminCreateCmd.MarkFlagRequired("email")
	adminCmd.AddCommand(adminCreateCmd)

	rootCmd.AddCommand(serveCmd, migrateCmd, auditCmd, adminCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
