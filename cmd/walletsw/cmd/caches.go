package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/wallet-sw/pkg/cache"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cachesCmd = &cobra.Command{
	Use:   "caches",
	Short: "Inspect and delete cache stores",
}

var cachesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cache stores and their entry counts",
	Args:  cobra.NoArgs,
	RunE: withStorage(func(ctx context.Context, w io.Writer, storage cache.Storage, current string, args []string) error {
		return listCaches(ctx, w, storage, current)
	}),
}

var cachesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a cache store",
	Args:  cobra.ExactArgs(1),
	RunE: withStorage(func(ctx context.Context, w io.Writer, storage cache.Storage, current string, args []string) error {
		return deleteCache(ctx, w, storage, args[0])
	}),
}

var cachesPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every cache store except the current version",
	Args:  cobra.NoArgs,
	RunE: withStorage(func(ctx context.Context, w io.Writer, storage cache.Storage, current string, args []string) error {
		return purgeCaches(ctx, w, storage, current)
	}),
}

func init() {
	cachesCmd.AddCommand(cachesListCmd, cachesDeleteCmd, cachesPurgeCmd)
	rootCmd.AddCommand(cachesCmd)
}

type storageFunc func(ctx context.Context, w io.Writer, storage cache.Storage, current string, args []string) error

func withStorage(fn storageFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		set, err := loadSettings(viper.GetViper())
		if err != nil {
			return err
		}

		storage, closeStorage, err := openStorage(cmd.Context(), set.Store)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := closeStorage(); cerr != nil && err == nil {
				err = cerr
			}
		}()

		return fn(cmd.Context(), cmd.OutOrStdout(), storage, set.Router.VersionTag, args)
	}
}

func listCaches(ctx context.Context, w io.Writer, storage cache.Storage, current string) error {
	names, err := storage.Keys(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(w, "(no caches)")
		return nil
	}

	for _, name := range names {
		store, err := storage.Open(ctx, name)
		if err != nil {
			return err
		}
		keys, err := store.Keys(ctx)
		if err != nil {
			return err
		}
		marker := " "
		if name == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s\t%d\n", marker, name, len(keys))
	}
	return nil
}

func deleteCache(ctx context.Context, w io.Writer, storage cache.Storage, name string) error {
	deleted, err := storage.Delete(ctx, name)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", cache.ErrStoreNotFound, name)
	}
	fmt.Fprintf(w, "deleted %s\n", name)
	return nil
}

func purgeCaches(ctx context.Context, w io.Writer, storage cache.Storage, current string) error {
	names, err := storage.Keys(ctx)
	if err != nil {
		return err
	}

	n := 0
	for _, name := range names {
		if name == current {
			continue
		}
		deleted, err := storage.Delete(ctx, name)
		if err != nil {
			return err
		}
		if deleted {
			fmt.Fprintf(w, "deleted %s\n", name)
			n++
		}
	}
	if n == 0 {
		fmt.Fprintln(w, "(nothing to purge)")
	}
	return nil
}
