package main

import (
	"encoding/json"
	"fmt"

	"github.com/devrev/medadmin/internal/pagination"
	"github.com/spf13/cobra"
)

func newPagesCmd() *cobra.Command {
	var (
		page, total int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Print the page labels a list view renders",
		Long: `Prints the page controls for --page out of --total pages, eliding long
runs of pages with "...".

Example:
  medadmin pages --page 1 --total 10    # 1 2 3 ... 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			labels := pagination.PageNumbers(page, total)
			out := cmd.OutOrStdout()

			if asJSON {
				data, err := json.Marshal(labels)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}
			_, err := fmt.Fprintln(out, formatLabels(labels))
			return err
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "current page (1-based)")
	cmd.Flags().IntVar(&total, "total", 0, "total number of pages")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print labels as a JSON array")
	return cmd
}
