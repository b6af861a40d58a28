// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/685Degrees/echo-reader/internal/app"
	"github.com/685Degrees/echo-reader/internal/config"
)

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
	mute     = flag.Bool("mute", false, "Play without an audio device")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("echo-reader v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "serve":
		dir := "."
		if len(args) > 1 {
			dir = args[1]
		}
		runServe(dir)

	case "init":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: init command requires directory path")
			fmt.Fprintln(os.Stderr, "Usage: echo-reader init <data-directory>")
			os.Exit(1)
		}
		runInit(args[1])

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", args[0])
		fmt.Fprintln(os.Stderr)
		showUsage()
		os.Exit(1)
	}
}

func runServe(dirArg string) {
	absDir, err := filepath.Abs(dirArg)
	if err != nil {
		log.Fatalf("Invalid data directory: %v", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		log.Fatalf("Create data directory: %v", err)
	}

	if err := config.LoadEnv(absDir); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfgPath := filepath.Join(absDir, config.FileName)
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	printBanner(absDir, cfgPath, cfg, created)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down gracefully...")
		cancel()
	}()

	if err := app.Run(ctx, app.Options{
		DataDir: absDir,
		CfgPath: cfgPath,
		Cfg:     cfg,
		Mute:    *mute,
	}); err != nil {
		log.Fatalf("echo-reader failed: %v", err)
	}
}

func runInit(dirArg string) {
	absDir, err := filepath.Abs(dirArg)
	if err != nil {
		log.Fatalf("Invalid data directory: %v", err)
	}
	cfgPath := filepath.Join(absDir, config.FileName)
	_, created, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("Failed to create config: %v", err)
	}
	if created {
		fmt.Printf("Wrote %s\n", cfgPath)
	} else {
		fmt.Printf("%s already exists\n", cfgPath)
	}
	fmt.Printf("Put %s and %s in %s\n", config.EnvElevenLabsKey, config.EnvOpenAIKey, filepath.Join(absDir, ".env"))
}

func showUsage() {
	fmt.Println("echo-reader - listen to texts, pause to talk about them")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  echo-reader serve [directory]   Run the reader with its data in directory (default .)")
	fmt.Println("  echo-reader init <directory>    Write a default echo.json")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -h        Show this help message")
	fmt.Println("  -version  Show version information")
	fmt.Println("  -mute     Play without an audio device")
	fmt.Println()
	fmt.Println("Environment (or <directory>/.env):")
	fmt.Printf("  %-20s speech provider key\n", config.EnvElevenLabsKey)
	fmt.Printf("  %-20s realtime provider key, used by the built-in broker\n", config.EnvOpenAIKey)
	fmt.Printf("  %-20s overrides viewer.http_addr\n", config.EnvHTTPAddr)
}

func printBanner(dataDir, cfgPath string, cfg config.Config, created bool) {
	fmt.Println("╔════════════════════════════════════════════════════════╗")
	fmt.Println("║                      echo-reader                       ║")
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Data Directory: %s\n", dataDir)
	fmt.Printf("Config File:    %s", cfgPath)
	if created {
		fmt.Print(" (new)")
	}
	fmt.Println()
	fmt.Printf("Speech:         %s\n", cfg.Speech.Provider)
	if cfg.Broker.Enabled {
		fmt.Printf("Session Broker: %s\n", cfg.SessionURL())
	}
	fmt.Println()
	fmt.Println("Starting... (Press Ctrl+C to stop)")
	fmt.Println("────────────────────────────────────────────────────────")
	fmt.Println()
}
