// Package commands implements the CLI commands for boatimg.
package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/boatimg/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "boatimg",
	Short: "Fetch the main photo of a boats.com listing",
	Long: `Boatimg retrieves listing images from boats.com.

It first requests the image directly with browser-like headers and, if the
site refuses, renders the listing in headless Chrome to find and capture the
largest listing photo. Results are served over HTTP as base64 data URLs or
written to disk from the command line.

Examples:
  # Run the HTTP service
  boatimg serve --addr :8080

  # Fetch one listing image to a file
  boatimg fetch -u "https://www.boats.com/sailing-boats/2019-beneteau-oceanis-46.1/12345/oceanis-46-1-for-sale" -o boat.jpg

  # Screenshot fallback instead of listing rendering
  boatimg fetch -u "https://images.boats.com/resize/1/23/45/photo.jpg" --fallback screenshot`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.boatimg.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "only log errors")
	flags.String("log-level", "", "log level: debug, info, warn, error (overrides --debug/--quiet)")
	flags.Bool("log-json", false, "log as JSON")
	flags.String("fallback", config.FallbackRender, "fallback tier when the direct fetch fails: render, screenshot, none")
	flags.String("max-size", "5MiB", "maximum image size (e.g. 5MiB, 2MB)")
	flags.String("chrome-path", "", "Chrome/Chromium binary (default: search PATH)")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log_json", flags.Lookup("log-json"))
	_ = viper.BindPFlag("fallback", flags.Lookup("fallback"))
	_ = viper.BindPFlag("max_size", flags.Lookup("max-size"))
	_ = viper.BindPFlag("render.chrome_path", flags.Lookup("chrome-path"))
}

func initConfig() {
	// A missing .env is normal; anything else is worth reporting.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logError("failed to load .env: %v", err)
	}

	config.Bind(viper.GetViper())

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".boatimg")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			logError("failed to read config: %v", err)
		}
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
