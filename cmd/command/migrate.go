package command

import (
	"github.com/spf13/cobra"

	"circulation/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the circulation tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)
		log.Info("tables ready", "driver", cfg.DBDriver)
		return nil
	},
}
