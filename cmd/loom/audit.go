package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent LLM calls from the audit trail",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := auditLog.Tail(limit)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"count": len(entries), "calls": entries})
			return
		}
		if len(entries) == 0 {
			fmt.Println("No LLM calls recorded.")
			return
		}
		var total float64
		for _, e := range entries {
			status := "ok"
			if e.Error != "" {
				status = "error: " + e.Error
			}
			fmt.Printf("%s  %-12s %-28s %6dms  $%.4f  %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Operation, e.Model,
				e.DurationMS, e.CostUSD, status)
			total += e.CostUSD
		}
		fmt.Printf("Total: $%.4f over %d call(s)\n", total, len(entries))
	},
}

func init() {
	auditCmd.Flags().IntP("limit", "l", 50, "max calls listed")
	rootCmd.AddCommand(auditCmd)
}
