package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/filebridge/vfslock/failmark"
)

func init() {
	rootCmd.AddCommand(markFailCmd)
	rootCmd.AddCommand(isFailCmd)
	rootCmd.AddCommand(clearFailCmd)
}

var markFailCmd = &cobra.Command{
	Use:   "mark-fail",
	Short: "Write a fail marker sidecar for --uri",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := buildManager()
		if err != nil {
			return err
		}
		failmark.New(mgr).MarkFail(context.Background(), flags.uri)
		return nil
	},
}

var isFailCmd = &cobra.Command{
	Use:   "is-fail",
	Short: "Report whether --uri has a fail marker",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := buildManager()
		if err != nil {
			return err
		}
		if failmark.New(mgr).IsFail(context.Background(), flags.uri) {
			cmd.Println("true")
			return nil
		}
		cmd.Println("false")
		return errExitOne
	},
}

var clearFailCmd = &cobra.Command{
	Use:   "clear-fail",
	Short: "Delete the fail marker sidecar for --uri, if present",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := buildManager()
		if err != nil {
			return err
		}
		failmark.New(mgr).ReleaseFail(context.Background(), flags.uri)
		return nil
	},
}
