package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/wallet-sw/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "walletsw",
	Short: "Offline cache router for the wallet card PWA",
	Long: "Serves the wallet card PWA through a versioned offline cache: the app shell\n" +
		"is precached on install, assets are served cache-first and the card artwork\n" +
		"network-first, with the cached index page as the offline fallback.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(viper.GetString("log.level"))
		if err != nil {
			return err
		}
		logging.Setup(logging.Config{
			Level:  level,
			Pretty: viper.GetBool("log.pretty"),
			Output: os.Stderr,
		})
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/walletsw/config.yaml)")
	flags.String("origin", "", "origin URL the app shell is served from")
	flags.String("version-tag", "", "cache version tag (default: "+defaultVersionTag()+")")
	flags.String("store", "", "cache backend: bolt or redis (default: bolt)")
	flags.String("bolt-path", "", "bolt database path (default: ~/.local/share/walletsw/cache.db)")
	flags.String("redis-addr", "", "redis address (default: localhost:6379)")
	flags.String("log-level", "", "log level: debug, info, warn, error (default: info)")
	flags.Bool("log-pretty", false, "human-readable console logs")

	viper.BindPFlag("origin", flags.Lookup("origin"))
	viper.BindPFlag("version", flags.Lookup("version-tag"))
	viper.BindPFlag("store.backend", flags.Lookup("store"))
	viper.BindPFlag("store.bolt_path", flags.Lookup("bolt-path"))
	viper.BindPFlag("store.redis_addr", flags.Lookup("redis-addr"))
	viper.BindPFlag("log.level", flags.Lookup("log-level"))
	viper.BindPFlag("log.pretty", flags.Lookup("log-pretty"))
}

func initConfig() {
	v := viper.GetViper()
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		v.SetConfigFile(cfg)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	configureEnv(v)
	setDefaults(v)

	v.ReadInConfig()
}

// configureEnv maps keys like store.redis_addr to WALLETSW_STORE_REDIS_ADDR.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("WALLETSW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "walletsw")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "walletsw")
	}
	return ".walletsw"
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "walletsw")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "walletsw")
	}
	return ".walletsw"
}
