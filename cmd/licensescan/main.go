// Command licensescan scans .NET solution/project trees for NuGet package
// references and reports each dependency's license.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/git-pkgs/licensescan"
	"github.com/git-pkgs/licensescan/discover"
	"github.com/git-pkgs/licensescan/licensecache"
	"github.com/git-pkgs/licensescan/report"
)

func main() {
	output := flag.String("o", "", "output file (default: stdout)")
	format := flag.String("format", "text", "report format: text or json")
	cacheDir := flag.String("cache-dir", "", "license text cache directory")
	clearCache := flag.Bool("clear-cache", false, "delete cached license texts and exit")
	jobs := flag.Int("jobs", 1, "packages resolved in parallel")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	// Ambient configuration (LICENSESCAN_* overrides) may live in a .env file.
	_ = godotenv.Load()

	logger := initLogger(*verbose)

	if *clearCache {
		cache, err := licensecache.New(*cacheDir, logger)
		if err != nil {
			logger.Error("opening cache", "error", err)
			os.Exit(1)
		}
		cache.Clear()
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: licensescan [OPTIONS] <solution|project|directory|package>...")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Arguments naming existing files or directories are scanned for package")
		fmt.Fprintln(os.Stderr, "references; anything else is treated as a package identifier in the form")
		fmt.Fprintln(os.Stderr, "Name, Name/Version, or pkg:nuget/Name@Version.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Example:")
		fmt.Fprintln(os.Stderr, "  licensescan ./MySolution.sln")
		fmt.Fprintln(os.Stderr, "  licensescan -format json -o licenses.json Newtonsoft.Json/13.0.3")
		os.Exit(1)
	}

	identifiers, err := collectIdentifiers(args, logger)
	if err != nil {
		logger.Error("collecting package identifiers", "error", err)
		os.Exit(1)
	}
	if len(identifiers) == 0 {
		logger.Warn("no package references found")
		return
	}
	logger.Info("resolving licenses", "packages", len(identifiers))

	resolver, err := licensescan.New(
		licensescan.WithCacheDir(*cacheDir),
		licensescan.WithConcurrency(*jobs),
		licensescan.WithLogger(logger),
	)
	if err != nil {
		logger.Error("initializing resolver", "error", err)
		os.Exit(1)
	}

	records := resolver.Resolve(context.Background(), identifiers)

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			logger.Error("creating output file", "path", *output, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	switch *format {
	case "json":
		err = report.WriteJSON(out, records)
	case "text":
		err = report.WriteText(out, records)
	default:
		logger.Error("unknown format", "format", *format)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("writing report", "error", err)
		os.Exit(1)
	}
}

// collectIdentifiers resolves each argument to package identifiers: paths go
// through the discoverer, everything else is parsed as an identifier.
func collectIdentifiers(args []string, logger *log.Logger) ([]licensescan.PackageIdentifier, error) {
	var identifiers []licensescan.PackageIdentifier
	for _, arg := range args {
		if _, err := os.Stat(arg); err == nil {
			refs, err := discover.Scan(arg)
			if err != nil {
				return nil, err
			}
			logger.Debug("discovered package references", "path", arg, "count", len(refs))
			for _, ref := range refs {
				identifiers = append(identifiers, licensescan.PackageIdentifier{
					Name:    ref.Name,
					Version: ref.Version,
				})
			}
			continue
		}
		id, err := licensescan.ParseIdentifier(arg)
		if err != nil {
			return nil, err
		}
		identifiers = append(identifiers, id)
	}
	return identifiers, nil
}

func initLogger(verbose bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: verbose,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}
