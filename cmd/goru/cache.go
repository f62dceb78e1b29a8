package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/goru/hostfunc"
)

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the WebAssembly compilation cache",
		Long: `Modules loaded with --wasm are compiled once and cached on disk.
The cache lives in $XDG_CACHE_HOME/goru or ~/.cache/goru.`,
	}
	cacheCmd.PersistentFlags().String("dir", "", "Cache directory (default: platform cache dir)")

	dirCmd := &cobra.Command{
		Use:   "dir",
		Short: "Print the cache directory",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), cacheDir(cmd))
		},
	}
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the compilation cache",
		Args:  cobra.NoArgs,
		RunE:  runCacheClear,
	}
	cacheCmd.AddCommand(dirCmd, clearCmd)
	return cacheCmd
}

func cacheDir(cmd *cobra.Command) string {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir
	}
	return hostfunc.DefaultCacheDir()
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	dir := cacheDir(cmd)
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
	return nil
}
