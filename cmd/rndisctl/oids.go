package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ardnew/softrndis/rndis"
)

func newOIDsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "oids",
		Short: "List the advertised NDIS object identifiers",
		Long: `List the OIDs reported for OID_GEN_SUPPORTED_LIST, in order, with
whether each can be queried and set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "OID\tNAME\tQUERY\tSET")
			for _, oid := range rndis.SupportedOIDs() {
				q, s := oid.Access()
				fmt.Fprintf(tw, "0x%08X\t%s\t%s\t%s\n", uint32(oid), oid, yesNo(q), yesNo(s))
			}
			return tw.Flush()
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
