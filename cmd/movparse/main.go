// Command movparse parses movement logs offline and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/saviobatista/movement-logger/internal/config"
	"github.com/saviobatista/movement-logger/internal/parser"
	"github.com/saviobatista/movement-logger/internal/uploads"
)

type options struct {
	feed        string
	encoding    string
	workers     int
	diagnostics bool
	indent      bool
}

// report is printed with -diagnostics
type report struct {
	*parser.Result
	Skipped     int                 `json:"skipped"`
	Diagnostics []parser.Diagnostic `json:"diagnostics"`
}

func main() {
	var opts options
	flag.StringVar(&opts.feed, "feed", parser.DefaultFeed.Name, "feed layout")
	flag.StringVar(&opts.encoding, "encoding", config.EncodingUTF8, "input encoding (utf-8 or latin1)")
	flag.IntVar(&opts.workers, "workers", 1, "parallel line parsers")
	flag.BoolVar(&opts.diagnostics, "diagnostics", false, "include skipped lines and per-line misses")
	flag.BoolVar(&opts.indent, "indent", false, "indent the JSON output")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: movparse [flags] file...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(context.Background(), flag.Args(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "movparse: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, paths []string, opts options, out io.Writer) error {
	feed, ok := parser.LookupFeed(opts.feed)
	if !ok {
		return fmt.Errorf("unknown feed %q", opts.feed)
	}

	contents := make([]string, len(paths))
	for i, path := range paths {
		//nolint:gosec // paths come from the command line
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if contents[i], err = uploads.Decode(opts.encoding, data); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	p := parser.New(parser.WithFeed(feed), parser.WithWorkers(opts.workers))
	res, err := p.ParseFiles(ctx, contents)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	if opts.indent {
		enc.SetIndent("", "  ")
	}
	if opts.diagnostics {
		diags := res.Diagnostics
		if diags == nil {
			diags = []parser.Diagnostic{}
		}
		return enc.Encode(report{Result: res, Skipped: res.Skipped, Diagnostics: diags})
	}
	return enc.Encode(res)
}
