package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"parlower/internal/ir"
	"parlower/internal/rtconfig"
)

// loadModuleFile reads path as a msgpack-encoded ir.Snapshot and restores
// it to a live *ir.Module. The raw bytes are returned alongside so a
// caller can key a cache lookup on their digest without re-reading the
// file.
func loadModuleFile(path string) (*ir.Module, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	var snap ir.Snapshot
	if err := msgpack.Unmarshal(raw, &snap); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return ir.Restore(&snap), raw, nil
}

func writeModuleFile(path string, m *ir.Module) error {
	raw, err := msgpack.Marshal(m.Export())
	if err != nil {
		return fmt.Errorf("encode module: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (rtconfig.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return rtconfig.Load(path, nil)
}
