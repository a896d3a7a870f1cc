package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/oshokin/http-fetcher/internal/app"
	"github.com/oshokin/http-fetcher/internal/config"
	"github.com/oshokin/http-fetcher/internal/logger"
	"github.com/oshokin/http-fetcher/internal/utils"
	"github.com/oshokin/http-fetcher/internal/version"
)

const debugLogLevel = "debug"

var (
	//nolint:gochecknoglobals // It is required for configuration initialization before the application starts.
	configFilenameFromFlag string

	//nolint:gochecknoglobals,lll // It is initialized once during the application's startup and shared across the command execution logic.
	appConfig *config.Config

	//nolint:gochecknoglobals,lll // Cobra command requires a global definition for proper command-line parsing and execution.
	rootCmd = &cobra.Command{
		Use:   "http-fetcher [flags] {url}",
		Short: "Fetch a URL over a bounded connection pool.",
		Long: `HTTP Fetcher sends a single HTTP request and prints the response body.
It supports:
- GET, POST, PUT, DELETE and OPTIONS requests
- Transparent gzip decompression
- Bounded per-host and total connection pools
- Typed failures for 400, 403, 404 and 412 responses

Successful responses (200 and 202) are written to stdout or to a file.`,
		Version: version.Short(),
		Args:    cobra.ExactArgs(1),
		PreRun:  initConfig,
		Run: func(cmd *cobra.Command, args []string) {
			if err := bindFlagsToConfig(cmd.Flags(), appConfig); err != nil {
				logger.Fatalf(cmd.Context(), "Failed to parse flags: %v", err)
			}

			logger.SetLevel(appConfig.ParsedLogLevel)

			params, err := buildParams(cmd.Flags(), args[0])
			if err != nil {
				logger.Fatalf(cmd.Context(), "Failed to parse request: %v", err)
			}

			app.ExecuteRootCommand(cmd.Context(), appConfig, params)
		},
	}
)

// Execute executes the root command.
func Execute() {
	signals := []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)

	defer func() {
		_ = logger.Logger().Sync()
	}()

	defer stop()

	go func() {
		defer stop()

		err := rootCmd.ExecuteContext(ctx)
		cobra.CheckErr(err)
	}()

	<-ctx.Done()
}

//nolint:gochecknoinits // Cobra requires the init function to set up flags before the command is executed.
func init() {
	rootCmd.PersistentFlags().StringVarP(
		&configFilenameFromFlag,
		"config",
		"c",
		"",
		fmt.Sprintf("path to the configuration file (default is '%s')",
			config.DefaultConfigFilename))

	rootCmd.SetVersionTemplate(version.Full() + "\n")

	addRequestFlags(rootCmd.Flags())

	rootCmd.AddCommand(configCmd, versionCmd)
}

func addRequestFlags(flags *pflag.FlagSet) {
	flags.StringP(
		"method",
		"X",
		"GET",
		"HTTP method: "+strings.Join(app.SupportedMethods(), ", ")+".")

	flags.StringArrayP(
		"header",
		"H",
		nil,
		"request header in 'Name: value' form, can be repeated.")

	flags.StringP(
		"data",
		"d",
		"",
		"request body for POST and PUT; use @path to read it from a file.")

	flags.StringP(
		"output",
		"o",
		"",
		"write the raw response body to a file instead of stdout.")

	flags.Int64P(
		"timeout",
		"t",
		0,
		"request timeout in milliseconds, overrides timeout_ms.")

	flags.StringP(
		"user-agent",
		"A",
		"",
		"User-Agent sent when the request sets none, overrides user_agent.")

	flags.BoolP(
		"insecure",
		"k",
		false,
		"skip TLS certificate and hostname verification.")

	flags.BoolP(
		"verbose",
		"v",
		false,
		"log at debug level, including request and response dumps.")
}

func initConfig(cmd *cobra.Command, _ []string) {
	var err error

	appConfig, err = config.LoadConfig(configFilenameFromFlag)
	if err != nil {
		logger.Fatalf(cmd.Context(), "Failed to load configuration: %v", err)
	}
}

func bindFlagsToConfig(flags *pflag.FlagSet, cfg *config.Config) error {
	if flag := flags.Lookup("timeout"); flag != nil && flag.Changed {
		cfg.TimeoutMS, _ = flags.GetInt64("timeout")
	}

	if flag := flags.Lookup("user-agent"); flag != nil && flag.Changed {
		cfg.UserAgent, _ = flags.GetString("user-agent")
	}

	if flag := flags.Lookup("insecure"); flag != nil && flag.Changed {
		cfg.InsecureSkipTLSVerify, _ = flags.GetBool("insecure")
	}

	if flag := flags.Lookup("verbose"); flag != nil && flag.Changed {
		if isVerbose, _ := flags.GetBool("verbose"); isVerbose {
			cfg.LogLevel = debugLogLevel
		}
	}

	return config.ValidateConfig(cfg)
}

func buildParams(flags *pflag.FlagSet, url string) (app.Params, error) {
	method, _ := flags.GetString("method")
	headerLines, _ := flags.GetStringArray("header")
	data, _ := flags.GetString("data")
	outputPath, _ := flags.GetString("output")

	headers, err := utils.ParseHeaders(headerLines)
	if err != nil {
		return app.Params{}, err
	}

	body, err := app.ReadBodyArgument(data)
	if err != nil {
		return app.Params{}, err
	}

	return app.Params{
		Method:     method,
		URL:        url,
		Headers:    headers,
		Body:       body,
		OutputPath: outputPath,
	}, nil
}
