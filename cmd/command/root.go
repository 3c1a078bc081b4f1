package command

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"circulation/internal/config"
	"circulation/internal/database"
	"circulation/internal/logger"
)

var (
	envFile string

	cfg *config.Config
	log *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "circulation",
	Short: "circulation - library circulation desk",
	Long: `circulation tracks books, students and loans for a single library.

It serves a JSON API for the circulation desk (add books and students, issue and
return books, search and statistics) and provides maintenance commands to create
the tables and load sample data.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(envFile)
		if err != nil {
			return err
		}
		cfg = c
		log = logger.New(cfg)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file merged into the environment")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, scanCmd)
}

// openDatabase connects and makes sure the tables exist.
func openDatabase() (*gorm.DB, error) {
	db, err := database.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}
