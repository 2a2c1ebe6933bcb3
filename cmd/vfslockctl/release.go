package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/filebridge/vfslock/lock"
)

func init() {
	rootCmd.AddCommand(releaseCmd)
}

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release the lock on --uri, if held",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := buildManager()
		if err != nil {
			return err
		}
		lock.New(mgr).Release(context.Background(), flags.uri)
		return nil
	},
}
