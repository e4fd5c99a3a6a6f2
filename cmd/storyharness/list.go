package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storyharness/pkg/api"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List scenario names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := api.NewService(nil, nil)
		for _, name := range svc.ListScenarios() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}
