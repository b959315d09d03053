package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/relay/internal/decompose"
)

var inferCmd = &cobra.Command{
	Use:   "infer <text...>",
	Short: "Show the capabilities inferred from a piece of text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caps := decompose.InferCapabilities(strings.Join(args, " "))
		if jsonOutput {
			return printJSON(map[string]any{"capabilities": caps})
		}
		fmt.Println(strings.Join(caps, " "))
		return nil
	},
}
