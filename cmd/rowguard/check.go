package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the application schema and print its tables and roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		policy, err := e.loadPolicy()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ROLE\tLEVEL\tDESCRIPTION")
		for _, role := range policy.Registry().Roles() {
			fmt.Fprintf(w, "%s\t%d\t%s\n", role.Name, role.Level, role.Description)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "TABLE\tORG SCOPED\tFIELDS")
		for _, table := range policy.Tables() {
			fmt.Fprintf(w, "%s\t%t\t%d\n", table.Name, table.OrganizationScoped, len(table.Fields))
		}
		fmt.Fprintf(w, "\ndefault role: %s\n", policy.DefaultRole())
		return w.Flush()
	},
}
