package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/boatimg/internal/batch"
	"github.com/jmylchreest/boatimg/internal/logger"
	"github.com/jmylchreest/boatimg/internal/output"
	"github.com/jmylchreest/boatimg/pkg/acquire"
	"github.com/jmylchreest/boatimg/pkg/fetcher"
	"github.com/jmylchreest/boatimg/pkg/signature"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url...]",
	Short: "Fetch listing images from the command line",
	Long: `Fetch runs the acquisition pipeline for each URL and prints one record per
URL. Duplicate URLs are fetched once. With --output the image bytes are
written to disk; when several URLs are given the files are numbered
(boat-1.jpg, boat-2.jpg, ...). A missing file extension is filled in from the
detected image format.

Examples:
  boatimg fetch -u "https://www.boats.com/power-boats/2020-sea-ray-320/12345/sea-ray-320-sundancer" -o boat.jpg
  boatimg fetch -u URL1 -u URL2 --format jsonl
  boatimg fetch --input urls.txt --concurrency 4 -o images/boat.jpg`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	flags := fetchCmd.Flags()
	flags.StringSliceP("url", "u", nil, "listing or image URL(s) (can be repeated)")
	flags.StringP("input", "i", "", "read URLs from this file, one per line (- for stdin)")
	flags.StringP("output", "o", "", "write image bytes to this file")
	flags.IntP("concurrency", "c", 1, "number of URLs fetched at once")
	flags.String("format", "json", "record format: json, jsonl, yaml")
	flags.Bool("pretty", true, "indent JSON records")
	flags.Int("indent", 2, "spaces per JSON indent level when --pretty is set")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		logError("%v", err)
		return err
	}

	urls, err := collectURLs(cmd, args)
	if err != nil {
		logError("%v", err)
		return err
	}
	if len(urls) == 0 {
		return cmd.Help()
	}

	format, _ := cmd.Flags().GetString("format")
	pretty, _ := cmd.Flags().GetBool("pretty")
	indent, _ := cmd.Flags().GetInt("indent")
	w, err := output.NewWriter(os.Stdout, output.Format(format),
		output.WithPretty(pretty),
		output.WithIndent(indentString(indent)))
	if err != nil {
		logError("%v", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	outPath, _ := cmd.Flags().GetString("output")

	records := fetchAll(ctx, buildAcquirer(cfg), urls, concurrency, outPath)

	failed := 0
	for _, rec := range records {
		if !rec.Success {
			failed++
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d URLs failed", failed, len(urls))
	}
	return nil
}

// collectURLs merges --url, positional arguments and --input into one
// de-duplicated list.
func collectURLs(cmd *cobra.Command, args []string) ([]string, error) {
	q := batch.NewQueue()

	flagURLs, _ := cmd.Flags().GetStringSlice("url")
	for _, u := range append(flagURLs, args...) {
		q.Add(u)
	}

	input, _ := cmd.Flags().GetString("input")
	if input != "" {
		var r io.Reader
		if input == "-" {
			r = cmd.InOrStdin()
		} else {
			f, err := os.Open(input)
			if err != nil {
				return nil, fmt.Errorf("failed to open URL list: %w", err)
			}
			defer f.Close()
			r = f
		}
		if _, err := q.ReadLines(r); err != nil {
			return nil, err
		}
	}

	return q.Drain(), nil
}

// imageAcquirer is the part of acquire.Acquirer fetchAll needs.
type imageAcquirer interface {
	Acquire(ctx context.Context, req acquire.Request) fetcher.Outcome
}

// fetchAll acquires every URL with at most concurrency in flight. Records
// are returned in input order.
func fetchAll(ctx context.Context, acq imageAcquirer, urls []string, concurrency int, outPath string) []output.Record {
	if concurrency < 1 {
		concurrency = 1
	}
	records := make([]output.Record, len(urls))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, u := range urls {
		g.Go(func() error {
			start := time.Now()
			out := acq.Acquire(ctx, acquire.Request{URL: u})
			rec := output.NewRecord(u, out, time.Since(start))
			if out.Success && outPath != "" {
				saveImage(&rec, numberedPath(outPath, i, len(urls), out.Bytes), out.Bytes)
			}
			records[i] = rec
			return nil
		})
	}
	_ = g.Wait()
	return records
}

func saveImage(rec *output.Record, path string, body []byte) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create output directory", "path", dir, "error", err)
			rec.Success = false
			rec.Error = err.Error()
			return
		}
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		logger.Error("failed to write image", "path", path, "error", err)
		rec.Success = false
		rec.Error = err.Error()
		return
	}
	rec.File = path
	logInfo("wrote %s (%s)", path, rec.SizeHuman)
}

// indentString turns an --indent width into an indent string. Widths
// below one fall back to two spaces.
func indentString(width int) string {
	if width < 1 {
		width = 2
	}
	return strings.Repeat(" ", width)
}

// numberedPath numbers base when several images are written and fills in a
// missing extension from the image signature.
func numberedPath(base string, index, total int, body []byte) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = extensionFor(body)
	}
	if total > 1 {
		stem = fmt.Sprintf("%s-%d", stem, index+1)
	}
	return stem + ext
}

func extensionFor(body []byte) string {
	format, ok := signature.Detect(body)
	if !ok {
		return ""
	}
	if format == signature.FormatJPEG {
		return ".jpg"
	}
	return "." + string(format)
}
