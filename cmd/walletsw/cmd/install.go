package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Sternrassler/wallet-sw/pkg/lifecycle"
	"github.com/Sternrassler/wallet-sw/pkg/router"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Precache the app shell and activate the current version",
	Long: "Fetches the precache manifest from the origin into the store named by the\n" +
		"version tag, then deletes every other version's store.",
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()

	set, err := loadSettings(viper.GetViper())
	if err != nil {
		return err
	}

	storage, closeStorage, err := openStorage(ctx, set.Store)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStorage(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	rt, err := router.New(set.Router, storage, http.DefaultTransport)
	if err != nil {
		return err
	}
	reg := lifecycle.NewRegistration(lifecycle.Options{Network: http.DefaultTransport, Retry: set.Retry})

	return install(ctx, reg, rt, cmd.OutOrStdout())
}

func install(ctx context.Context, reg *lifecycle.Registration, rt *router.Router, w io.Writer) error {
	id, err := reg.Register(ctx, rt)
	if err != nil {
		return err
	}
	defer rt.Flush()

	status := reg.Status()
	if status.Active == nil || status.Active.ID != id {
		return fmt.Errorf("version %s installed but not active", id)
	}
	fmt.Fprintf(w, "activated %s as %s\n", rt.VersionTag(), id)
	return nil
}
