package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/concordlab/concord/catalog"
)

var protocolsCmd = &cobra.Command{
	Use:   "protocols",
	Short: "List the built-in consensus protocols.",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tTHRESHOLD\tTIMEOUT\tRETRIES")
		for _, p := range catalog.New().Protocols() {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%d\n", p.Name, p.Type, p.Threshold, p.Timeout, p.MaxRetries)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(protocolsCmd)
}
