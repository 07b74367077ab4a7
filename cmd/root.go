package cmd

import (
	"context"
	"errors"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tanq16/chunkget/internal/downloaders/s3"
	"github.com/tanq16/chunkget/internal/engine"
	"github.com/tanq16/chunkget/internal/output"
	"github.com/tanq16/chunkget/internal/scheduler"
	"github.com/tanq16/chunkget/internal/utils"
)

var (
	outputPath     string
	connections    int
	workers        int
	timeout        time.Duration
	kaTimeout      time.Duration
	userAgent      string
	proxyURL       string
	proxyUsername  string
	proxyPassword  string
	headers        []string
	bearerToken    string
	limitRate      string
	retries        int
	retryBackoff   time.Duration
	statusInterval time.Duration
	s3Profile      string
	keepCache      bool
	debug          bool
	configFile     string

	cfg utils.Config
)

var ChunkgetVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "chunkget [URL]",
	Short:   "chunkget is a resumable multi-connection downloader",
	Version: ChunkgetVersion,
	Args:    cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd.Flags())
	},
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			cmd.Help()
			return
		}
		url := args[0]
		if _, err := u.Parse(url); err != nil {
			output.PrintError("Invalid URL format")
			os.Exit(1)
		}
		dest := outputPath
		if dest == "" {
			dest = utils.InferOutputPath(url)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := downloadOne(ctx, url, dest); err != nil {
			var fetchErr *engine.FetchError
			if errors.As(err, &fetchErr) {
				output.PrintWarning(fmt.Sprintf("Chunks %v can be resumed by running the same command again", fetchErr.Indices()))
			}
			os.Exit(1)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&outputPath, "output", "o", "", "Output file path (inferred from the URL if not provided)")
	flags.IntVarP(&connections, "connections", "c", 8, "Number of chunks downloaded in parallel per file (above 5 enables high-thread-mode)")
	flags.IntVarP(&workers, "workers", "w", 1, "Number of files downloaded in parallel in batch mode")
	flags.DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Time to wait for response headers or for more body bytes before retrying (eg. 5s, 10m)")
	flags.DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	flags.StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent (use 'randomize' for a browser agent)")
	flags.StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	flags.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	flags.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	flags.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'X-Api-Key: abc'); can be specified multiple times")
	flags.StringVar(&bearerToken, "bearer-token", "", "Bearer token sent as the Authorization header")
	flags.StringVar(&limitRate, "limit-rate", "", "Bandwidth cap per download (eg. 500KB, 2MiB); empty for unlimited")
	flags.IntVar(&retries, "retries", 5, "Retries per chunk after a network failure")
	flags.DurationVar(&retryBackoff, "retry-backoff", 500*time.Millisecond, "Base delay between chunk retries, multiplied by the attempt number")
	flags.DurationVar(&statusInterval, "status-interval", time.Second, "How often the resume status file is written")
	flags.StringVar(&s3Profile, "s3-profile", "", "AWS shared config profile for s3:// URLs")
	flags.BoolVar(&keepCache, "keep-cache", false, "Keep chunk cache files after a successful download")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&configFile, "config", "", "YAML config file with default settings")

	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCleanCmd())
}

// loadConfig builds cfg from the config file, then applies flags that were set
// explicitly on the command line.
func loadConfig(flags *pflag.FlagSet) error {
	cfg = utils.DefaultConfig()
	if configFile != "" {
		loaded, err := utils.LoadConfig(configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	apply := func(name string, fn func()) {
		if configFile == "" || flags.Changed(name) {
			fn()
		}
	}
	apply("connections", func() { cfg.Connections = connections })
	apply("workers", func() { cfg.Workers = workers })
	apply("timeout", func() { cfg.Timeout = timeout })
	apply("keep-alive-timeout", func() { cfg.KATimeout = kaTimeout })
	apply("user-agent", func() { cfg.UserAgent = userAgent })
	apply("proxy", func() { cfg.ProxyURL = proxyURL })
	apply("proxy-username", func() { cfg.ProxyUsername = proxyUsername })
	apply("proxy-password", func() { cfg.ProxyPassword = proxyPassword })
	apply("bearer-token", func() { cfg.BearerToken = bearerToken })
	apply("retries", func() { cfg.Retries = retries })
	apply("retry-backoff", func() { cfg.RetryBackoff = retryBackoff })
	apply("status-interval", func() { cfg.StatusInterval = statusInterval })
	apply("s3-profile", func() { cfg.S3Profile = s3Profile })
	if flags.Changed("header") {
		cfg.Headers = append(cfg.Headers, headers...)
	}
	if flags.Changed("keep-cache") {
		cfg.KeepCache = keepCache
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if configFile == "" || flags.Changed("limit-rate") {
		rate, err := utils.ParseRate(limitRate)
		if err != nil {
			return fmt.Errorf("invalid --limit-rate: %w", err)
		}
		cfg.RateLimit = rate
	}

	// Proxy credentials embedded in the URL move to the explicit fields
	parsedProxy, err := u.Parse(cfg.ProxyURL)
	if err == nil && parsedProxy.User != nil && cfg.ProxyUsername == "" {
		cfg.ProxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			cfg.ProxyPassword = password
		}
		parsedProxy.User = nil
		cfg.ProxyURL = parsedProxy.String()
	}

	utils.InitLogger(cfg.Debug)
	return cfg.Validate()
}

// newRegistry wires URL schemes to their range clients. The S3 client is
// created on first use so plain HTTP runs never load AWS configuration.
func newRegistry(ctx context.Context) scheduler.Registry {
	httpClient := engine.NewHTTPRangeClient(utils.NewHTTPClient(cfg.HTTPClientConfig()))
	httpFactory := func(string) (engine.RangeClient, error) { return httpClient, nil }
	s3Client := sync.OnceValues(func() (*s3.Client, error) {
		return s3.NewClient(ctx, cfg.S3Profile)
	})
	return scheduler.Registry{
		"http":  httpFactory,
		"https": httpFactory,
		s3.Scheme: func(string) (engine.RangeClient, error) {
			c, err := s3Client()
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

func downloadOne(ctx context.Context, url, dest string) error {
	log := utils.GetLogger("cmd")
	client, err := newRegistry(ctx).ClientFor(url)
	if err != nil {
		output.PrintError(err.Error())
		return err
	}
	dest, err = scheduler.PrepareOutput(url, dest)
	if err != nil {
		output.PrintError(err.Error())
		return err
	}
	log.Debug().Str("url", url).Str("output", dest).Msg("Resolved output path")
	display := output.NewChunkDisplay(os.Stdout, output.IsTerminal(os.Stdout))
	if err := engine.New(client, scheduler.EngineOptions(cfg.DownloadSettings())).Download(ctx, url, dest, display); err != nil {
		switch {
		case errors.Is(err, engine.ErrUnsupportedResource):
			output.PrintError("Server does not report a length for ranged requests; resumable download is not possible")
		case errors.Is(err, engine.ErrAssemble):
		case errors.As(err, new(*engine.FetchError)):
		default:
			output.PrintError(err.Error())
		}
		return err
	}
	return nil
}
