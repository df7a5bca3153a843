package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"parlower/internal/pipeline"
)

var validateCmd = &cobra.Command{
	Use:   "validate <module.mp>",
	Short: "Run the lowering pipeline without printing the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	m, _, err := loadModuleFile(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sink := logSink{color: wantColor(cmd)}
	if _, err := pipeline.Run(pipeline.Request{Module: m, Config: cfg, Progress: sink}); err != nil {
		return err
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	if !quiet {
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
	}
	return nil
}
