// One-shot tool: import daily bars from a CSV file into the Parquet store.
//
// Expected header: symbol,date,open,high,low,close,volume with dates in
// YYYY-MM-DD form. Re-importing a date replaces the stored bar.
//
// Usage:
//
//	go run cmd/quantflow-import/main.go -csv bars.csv
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"quantflow/internal/config"
	"quantflow/internal/domain"
	"quantflow/internal/store"
	"quantflow/internal/util"
)

func main() {
	csvPath := flag.String("csv", "", "CSV file to import (required)")
	flag.Parse()

	cfgPath := "config/quantflow.yaml"
	if p := os.Getenv("QUANTFLOW_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if *csvPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	bars, err := readCSV(*csvPath)
	if err != nil {
		log.Fatalf("reading %s: %v", *csvPath, err)
	}
	if len(bars) == 0 {
		slog.Info("no bars to import")
		return
	}

	bs := store.NewParquetStore(cfg.Storage.DataDir)
	if err := bs.WriteBars(context.Background(), bars); err != nil {
		log.Fatalf("writing bars: %v", err)
	}

	slog.Info("import complete", "bars", len(bars), "data_dir", cfg.Storage.DataDir)
}

func readCSV(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, want := range []string{"symbol", "date", "open", "high", "low", "close", "volume"} {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("missing column %q", want)
		}
	}

	var bars []domain.Bar
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		ts, err := time.Parse("2006-01-02", rec[col["date"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad date: %w", line, err)
		}
		bar := domain.Bar{Symbol: rec[col["symbol"]], Timestamp: ts.UTC()}
		for _, field := range []struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open},
			{"high", &bar.High},
			{"low", &bar.Low},
			{"close", &bar.Close},
		} {
			v, err := strconv.ParseFloat(rec[col[field.name]], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad %s: %w", line, field.name, err)
			}
			*field.dst = v
		}
		vol, err := strconv.ParseInt(rec[col["volume"]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad volume: %w", line, err)
		}
		bar.Volume = vol
		bars = append(bars, bar)
	}
	return bars, nil
}
