package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mikey/chat-sentinel/internal/config"
	"github.com/mikey/chat-sentinel/internal/core"
	"github.com/mikey/chat-sentinel/internal/factory"
	"github.com/mikey/chat-sentinel/internal/logging"
	"go.uber.org/zap"
)

var (
	// Input flags
	text     = flag.String("text", "", "Message text to scan (use stdin if not specified)")
	scanURL  = flag.String("url", "", "Single URL to scan instead of extracting from text")
	scanFile = flag.String("file", "", "Local file to scan")

	// URL scanning flags
	maxRedirects   = flag.Int("max-redirects", 5, "Maximum redirect hops to follow")
	requestTimeout = flag.Duration("request-timeout", 8*time.Second, "Per-request timeout for URL resolution")
	exemptHosts    = flag.String("exempt-hosts", "", "Comma-separated list of hosts exempt from local rules")
	sbAPIKey       = flag.String("sb-api-key", "", "Google Safe Browsing API key (local rules only if empty)")

	// File scanning flags
	clamavEnabled = flag.Bool("clamav", false, "Scan files with a ClamAV daemon")
	clamavAddress = flag.String("clamav-address", "tcp://127.0.0.1:3310", "ClamAV daemon address")
	yaraEnabled   = flag.Bool("yara", false, "Scan files with the yara binary")
	yaraBinary    = flag.String("yara-binary", "yara", "Path to the yara binary")
	yaraRules     = flag.String("yara-rules", "./yara_rules", "Directory of YARA rule files")

	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.Bool("use-config", false, "Load settings from the config file instead of flags")
)

func main() {
	flag.Parse()

	var cfg *config.Config
	var err error

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration from file if requested
	if *configFile {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		// Create config from command line flags
		cfg = createConfigFromFlags()
	}

	scanners := factory.NewScannerFactory(cfg, logger)
	ctx := context.Background()

	if *scanFile != "" {
		runFileScan(ctx, scanners, *scanFile, logger)
		return
	}
	runURLScan(ctx, scanners, logger)
}

func runURLScan(ctx context.Context, scanners *factory.ScannerFactory, logger *zap.Logger) {
	scanner, err := scanners.CreateURLScanner()
	if err != nil {
		logger.Fatal("Failed to create URL scanner", zap.Error(err))
	}

	startTime := time.Now()
	var verdicts []core.ScanVerdict
	if *scanURL != "" {
		verdicts = scanner.ScanMany(ctx, []string{*scanURL})
	} else {
		content := *text
		if content == "" {
			logger.Info("Reading message text from stdin")
			data, err := io.ReadAll(bufio.NewReader(os.Stdin))
			if err != nil {
				logger.Fatal("Failed to read stdin", zap.Error(err))
			}
			content = string(data)
		}
		verdicts = scanner.ScanContent(ctx, content)
	}

	fmt.Printf("\n=== Results ===\n")
	if len(verdicts) == 0 {
		fmt.Printf("No URLs found\n")
	}
	for _, v := range verdicts {
		printVerdict(v)
	}
	fmt.Printf("Processing time: %v\n", time.Since(startTime))
}

func runFileScan(ctx context.Context, scanners *factory.ScannerFactory, path string, logger *zap.Logger) {
	scanner, err := scanners.CreateFileScanner(nil, nil)
	if err != nil {
		logger.Fatal("Failed to create file scanner", zap.Error(err))
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Fatal("Failed to stat input file", zap.Error(err), zap.String("file", path))
	}

	att := core.Attachment{
		Filename: filepath.Base(path),
		Size:     info.Size(),
		Fetch: func(ctx context.Context, w io.Writer) error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(w, f)
			return err
		},
	}

	startTime := time.Now()
	verdicts := scanner.ScanAttachments(ctx, []core.Attachment{att})

	fmt.Printf("\n=== Results ===\n")
	for _, v := range verdicts {
		printVerdict(v)
	}
	fmt.Printf("Processing time: %v\n", time.Since(startTime))
}

func printVerdict(v core.ScanVerdict) {
	fmt.Printf("Target: %s\n", v.Target)
	fmt.Printf("Malicious: %t\n", v.Malicious)
	if v.Reason() != "" {
		fmt.Printf("Reason: %s\n", v.Reason())
	}
	if v.ContentHash != "" {
		fmt.Printf("SHA-256: %s\n", v.ContentHash)
	}
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	v.Set("urlscan.enabled", true)
	v.Set("urlscan.max_redirects", *maxRedirects)
	v.Set("urlscan.request_timeout", requestTimeout.String())
	if *exemptHosts != "" {
		hosts := strings.Split(*exemptHosts, ",")
		for i, h := range hosts {
			hosts[i] = strings.TrimSpace(h)
		}
		v.Set("urlscan.exempt_hosts", hosts)
	}

	if *sbAPIKey != "" {
		v.Set("reputation.enabled", true)
		v.Set("reputation.api_key", *sbAPIKey)
	} else {
		v.Set("reputation.enabled", false)
	}

	v.Set("filescan.enabled", true)
	v.Set("clamav.enabled", *clamavEnabled)
	v.Set("clamav.address", *clamavAddress)
	v.Set("yara.enabled", *yaraEnabled)
	v.Set("yara.binary", *yaraBinary)
	v.Set("yara.rules_path", *yaraRules)

	return config.NewFromViper(v)
}
