package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"billing-trust/core/billing"
	apperrors "billing-trust/internal/errors"
)

var loadProvider string

// loadCmd ingests a JSON array of raw billing rows under a new upload ID.
var loadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Load raw billing rows into the store",
	Long: `Load reads a JSON array of billing-fact rows (field names may be
PascalCase or lowercase), stores them under a freshly generated upload ID
and registers every distinct sub-account in the account directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return apperrors.Input(fmt.Sprintf("reading rows file: %v", err))
		}

		var raws []billing.RawRow
		if err := json.Unmarshal(data, &raws); err != nil {
			return apperrors.Parsing("rows file is not a JSON array of objects", err)
		}
		if len(raws) == 0 {
			return apperrors.Input("rows file contains no rows")
		}

		_, store, err := openEngine()
		if err != nil {
			return err
		}
		defer store.Close()

		uploadID, err := store.InsertRows(cmd.Context(), loadProvider, raws)
		if err != nil {
			return err
		}

		fmt.Printf("Loaded %d rows under upload %s\n", len(raws), uploadID)
		return nil
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadProvider, "provider", "", "provider to record for the upload")
}
