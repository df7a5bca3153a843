package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	parlowerui "parlower/cmd/parlower/ui"
	"parlower/internal/ir"
	"parlower/internal/ircache"
	"parlower/internal/irprint"
	"parlower/internal/pipeline"
	"parlower/internal/rtconfig"
)

var runCmd = &cobra.Command{
	Use:   "run <module.mp>",
	Short: "Lower a serialized IR module and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runLower,
}

func init() {
	runCmd.Flags().String("out", "", "write the lowered module to this path instead of printing it")
	runCmd.Flags().Bool("no-cache", false, "skip the on-disk lowering cache")
}

func runLower(cmd *cobra.Command, args []string) error {
	m, raw, err := loadModuleFile(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	noCache, _ := cmd.Flags().GetBool("no-cache")
	cacheNS, _ := cmd.Flags().GetString("cache-dir")

	var cache *ircache.Cache
	var key ircache.Digest
	if !noCache {
		cache, err = ircache.Open(cacheNS)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		key = ircache.Sum(raw)
		if cached, ok, err := cache.Get(key); err != nil {
			return fmt.Errorf("cache lookup: %w", err)
		} else if ok {
			return emitModule(cmd, cached)
		}
	}

	if err := lower(cmd, m, cfg); err != nil {
		return err
	}

	if cache != nil {
		if err := cache.Put(key, m); err != nil {
			return fmt.Errorf("cache store: %w", err)
		}
	}

	return emitModule(cmd, m)
}

// lower runs the pipeline over m, reporting progress either through a
// live bubbletea view or colorized log lines depending on --ui and
// whether stdout is a terminal.
func lower(cmd *cobra.Command, m *ir.Module, cfg rtconfig.Config) error {
	uiModeFlag, _ := cmd.Flags().GetString("ui")
	mode, err := readUIMode(uiModeFlag)
	if err != nil {
		return err
	}

	if shouldUseTUI(mode) {
		return lowerWithTUI(m, cfg)
	}

	sink := logSink{color: wantColor(cmd)}
	_, err = pipeline.Run(pipeline.Request{Module: m, Config: cfg, Progress: sink})
	return err
}

func lowerWithTUI(m *ir.Module, cfg rtconfig.Config) error {
	events := make(chan pipeline.Event, 64)
	errCh := make(chan error, 1)

	go func() {
		_, err := pipeline.Run(pipeline.Request{Module: m, Config: cfg, Progress: pipeline.ChannelSink{Ch: events}})
		errCh <- err
		close(events)
	}()

	model := parlowerui.NewProgressModel(events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	err := <-errCh
	if uiErr != nil {
		return uiErr
	}
	return err
}

func emitModule(cmd *cobra.Command, m *ir.Module) error {
	outPath, _ := cmd.Flags().GetString("out")
	if outPath != "" {
		return writeModuleFile(outPath, m)
	}
	return irprint.Fprint(cmd.OutOrStdout(), m, irprint.Options{Color: wantColor(cmd)})
}
