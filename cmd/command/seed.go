package command

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"circulation/internal/database"
	"circulation/internal/seed"
	"circulation/internal/services"
)

var seedOpts = seed.DefaultOptions()

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load sample books, students and loan history into an empty library",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		clock := seed.NewClock()
		svc := services.New(db, services.WithClock(clock.Now), services.WithLogger(log))

		report, err := seed.New(svc, clock, log).Run(cmd.Context(), seedOpts)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedOpts.Books, "books", seedOpts.Books, "number of books to add")
	seedCmd.Flags().IntVar(&seedOpts.Students, "students", seedOpts.Students, "number of students to add")
	seedCmd.Flags().IntVar(&seedOpts.Transactions, "transactions", seedOpts.Transactions, "number of loans to attempt")
	seedCmd.Flags().IntVar(&seedOpts.MaxAgeDays, "max-age-days", seedOpts.MaxAgeDays, "oldest loan age in days")
	seedCmd.Flags().Int64Var(&seedOpts.Seed, "seed", seedOpts.Seed, "random seed")
}
