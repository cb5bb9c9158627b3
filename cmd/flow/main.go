package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Noofbiz/batchflow/batch"
	"github.com/Noofbiz/batchflow/csvdata"
	"github.com/Noofbiz/batchflow/dataset"
	"github.com/Noofbiz/batchflow/dsindex"
	"github.com/Noofbiz/batchflow/pipeline"
	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// options holds the effective run settings after merging the JSON config and
// the command line.
type options struct {
	pattern    string
	idColumn   string
	columns    []string
	normalize  []string
	batchSize  int
	epochs     int
	workers    int
	shuffle    bool
	seed       int64
	split      dsindex.Shares
	outDir     string
	indexCache string
	files      bool
	inputs     []string
	labels     []string
}

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	patternFlag := flag.String("pattern", "data/*.csv", "glob pattern for the CSV files (or any files with -files)")
	idColumn := flag.String("id-column", "", "name of the id column (default: first of id, item_id, itemid, index)")
	columns := flag.String("columns", "", "comma-separated value columns to load (default: all)")
	normalize := flag.String("normalize", "", "comma-separated components to normalize per batch")
	batchSize := flag.Int("batch-size", 32, "batch size (overrides JSON if provided)")
	epochs := flag.Int("epochs", 1, "number of epochs (overrides JSON if provided)")
	workers := flag.Int("workers", 0, "parallel batch workers (0 = sequential, -1 = NumCPU)")
	shuffle := flag.Bool("shuffle", false, "shuffle items before splitting and every epoch")
	seed := flag.Int64("seed", 0, "random seed (0 = time based)")
	split := flag.String("split", "", "comma-separated train,test[,validation] shares, e.g. 0.7,0.2")
	configPath := flag.String("config", "", "path to a JSON pipeline configuration (optional)")
	outDir := flag.String("out", "plots", "output directory for generated plots")
	indexCache := flag.String("index-cache", "", "gob file to reuse the dataset index from (written when missing)")
	files := flag.Bool("files", false, "index the files matched by -pattern instead of CSV rows")
	inputs := flag.String("inputs", "", "comma-separated input components to export as tensors for the test split")
	labels := flag.String("labels", "", "comma-separated label components to export as tensors")
	flag.Parse()

	opts := options{
		pattern:    *patternFlag,
		idColumn:   *idColumn,
		columns:    splitList(*columns),
		normalize:  splitList(*normalize),
		batchSize:  *batchSize,
		epochs:     *epochs,
		workers:    *workers,
		shuffle:    *shuffle,
		seed:       *seed,
		outDir:     *outDir,
		indexCache: *indexCache,
		files:      *files,
		inputs:     splitList(*inputs),
		labels:     splitList(*labels),
	}
	shares, err := parseShares(*split)
	if err != nil {
		klog.Fatalf("invalid -split: %v", err)
	}
	opts.split = shares

	var cfg pipeline.Config
	if strings.TrimSpace(*configPath) != "" {
		cfg, err = pipeline.LoadConfig(*configPath)
		if err != nil {
			klog.Fatalf("failed to load config %s: %v", *configPath, err)
		}
		applyConfig(&opts, cfg, explicitFlags())
	}

	d, err := buildDataset(opts)
	if err != nil {
		klog.Fatalf("failed to build dataset: %v", err)
	}
	klog.Infof("Dataset ready: %s items", humanize.Comma(int64(d.Len())))

	train := d
	if len(opts.split) > 0 {
		if err := d.Split(opts.split, opts.shuffle, opts.seed); err != nil {
			klog.Fatalf("failed to split dataset: %v", err)
		}
		train = d.Train
		klog.Infof("Split: train=%s test=%s validation=%s",
			humanize.Comma(int64(d.Train.Len())), humanize.Comma(int64(d.Test.Len())), humanize.Comma(int64(d.Validation.Len())))
	}

	components := opts.columns
	if len(components) == 0 {
		components = availableComponents(d)
	}
	p := train.Pipeline(cfg).Load(components...)
	if len(opts.normalize) > 0 {
		p = p.Normalize(opts.normalize...)
	}
	for _, c := range components {
		p = p.Stats(c)
	}

	runOpts := pipeline.RunOptions{
		BatchSize: opts.batchSize,
		Shuffle:   opts.shuffle,
		Seed:      opts.seed,
		NEpochs:   opts.epochs,
		Workers:   opts.workers,
	}
	stats, err := p.Run(context.Background(), runOpts)
	if err != nil {
		klog.Fatalf("pipeline failed: %v", err)
	}
	klog.Infof("Processed %s batches (%s items) over %d epoch(s)",
		humanize.Comma(int64(stats.Batches)), humanize.Comma(int64(stats.Items)), opts.epochs)

	series := make(map[string][]batch.Stats, len(components))
	for _, c := range components {
		v, _ := p.Var("stats:" + c)
		list, _ := v.([]batch.Stats)
		series[c] = list
		if len(list) > 0 {
			klog.Infof("  %-16s mean of batch means %.4f over %d batches", c, meanOf(list), len(list))
		}
	}
	if err := plotBatchMeans(opts.outDir, batchAxisLabel(opts.workers), components, series); err != nil {
		klog.Warningf("failed to write plot: %v", err)
	} else {
		klog.Infof("Wrote %s", filepath.Join(opts.outDir, "batch_means.png"))
	}

	if len(opts.inputs) > 0 && d.IsSplit() && d.Test.Len() > 0 {
		if err := exportTensors(d.Test, cfg, opts); err != nil {
			klog.Fatalf("tensor export failed: %v", err)
		}
	}
}

// explicitFlags returns the names of the flags set on the command line.
func explicitFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// applyConfig copies run settings from cfg unless the matching flag was given.
func applyConfig(opts *options, cfg pipeline.Config, explicit map[string]bool) {
	if v, ok := cfg.Get("run/batch_size"); ok && !explicit["batch-size"] {
		if n, ok := v.(float64); ok {
			opts.batchSize = int(n)
		}
	}
	if v, ok := cfg.Get("run/epochs"); ok && !explicit["epochs"] {
		if n, ok := v.(float64); ok {
			opts.epochs = int(n)
		}
	}
	if v, ok := cfg.Get("run/workers"); ok && !explicit["workers"] {
		if n, ok := v.(float64); ok {
			opts.workers = int(n)
		}
	}
	if v, ok := cfg.Get("run/shuffle"); ok && !explicit["shuffle"] {
		if b, ok := v.(bool); ok {
			opts.shuffle = b
		}
	}
	if v, ok := cfg.Get("run/seed"); ok && !explicit["seed"] {
		if n, ok := v.(float64); ok {
			opts.seed = int64(n)
		}
	}
	if v, ok := cfg.Get("run/normalize"); ok && !explicit["normalize"] {
		if list, ok := v.([]any); ok {
			opts.normalize = opts.normalize[:0]
			for _, item := range list {
				if s, ok := item.(string); ok {
					opts.normalize = append(opts.normalize, s)
				}
			}
		}
	}
}

func buildDataset(opts options) (*dataset.Dataset[string], error) {
	if opts.files {
		return buildFilesDataset(opts)
	}
	pattern, err := csvdata.AutoFind([]string{opts.pattern, filepath.Join("data", "*.csv"), filepath.Join("assets", "*.csv")})
	if err != nil {
		return nil, err
	}
	if pattern != opts.pattern {
		klog.Warningf("no files match %s, using %s", opts.pattern, pattern)
	}
	table, err := csvdata.Load(pattern, opts.idColumn, csvdata.Options{Columns: opts.columns})
	if err != nil {
		return nil, err
	}
	idx, err := loadOrBuildIndex(opts.indexCache, table.IDs())
	if err != nil {
		return nil, err
	}
	return dataset.New[string](idx, nil, table)
}

// loadOrBuildIndex reads the index from cachePath when it exists, otherwise
// builds it from ids and writes it there.
func loadOrBuildIndex(cachePath string, ids []string) (*dsindex.Index[string], error) {
	full, err := dsindex.New(ids)
	if err != nil {
		return nil, err
	}
	if cachePath == "" {
		return full, nil
	}
	if _, err := os.Stat(cachePath); err == nil {
		cached, err := dsindex.LoadFile[string](cachePath)
		if err != nil {
			return nil, fmt.Errorf("load index cache: %w", err)
		}
		if _, err := full.CreateSubset(cached); err != nil {
			return nil, fmt.Errorf("index cache %s does not match the data: %w", cachePath, err)
		}
		klog.Infof("Loaded index from %s", cachePath)
		return cached, nil
	}
	if err := full.SaveFile(cachePath); err != nil {
		klog.Warningf("failed to save index cache: %v", err)
	}
	return full, nil
}

// buildFilesDataset indexes files by name and preloads their sizes as the
// "size" component.
func buildFilesDataset(opts options) (*dataset.Dataset[string], error) {
	idx, err := dsindex.NewFilesIndex(opts.pattern, dsindex.FilesOptions{NoExt: true, Sort: true})
	if err != nil {
		return nil, err
	}
	rows := make(batch.Rows[string], idx.Len())
	for _, id := range idx.Indices() {
		path, _ := idx.Path(id)
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		rows[id] = map[string]float64{"size": float64(info.Size())}
	}
	klog.Infof("Indexed %s files (%s)", humanize.Comma(int64(idx.Len())), humanize.Bytes(totalSize(rows)))
	return dataset.New[string](idx, nil, rows)
}

func totalSize(rows batch.Rows[string]) uint64 {
	var total uint64
	for _, r := range rows {
		total += uint64(r["size"])
	}
	return total
}

// availableComponents lists the columns of the preloaded data.
func availableComponents(d *dataset.Dataset[string]) []string {
	switch pre := d.Preloaded().(type) {
	case *csvdata.Table:
		return pre.Columns()
	case batch.Rows[string]:
		return []string{"size"}
	}
	return nil
}

// exportTensors runs the pipeline over the test split and logs the shapes of
// the tensors a gomlx training loop would receive.
func exportTensors(test *dataset.Dataset[string], cfg pipeline.Config, opts options) error {
	names := append(append([]string(nil), opts.inputs...), opts.labels...)
	p := test.Pipeline(cfg).Load(names...)
	ts, err := pipeline.TrainDataset(p, pipeline.RunOptions{BatchSize: opts.batchSize}, opts.inputs, opts.labels)
	if err != nil {
		return err
	}
	ts.WithName("test")
	n := 0
	for {
		_, inputs, labels, err := ts.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if n == 0 {
			klog.Infof("Tensor batch: inputs %s", inputs[0].Shape())
			if len(labels) > 0 {
				klog.Infof("Tensor batch: labels %s", labels[0].Shape())
			}
		}
		n++
	}
	klog.Infof("Exported %s %s tensor batches", humanize.Comma(int64(n)), ts.Name())
	return nil
}

// batchAxisLabel names the x axis of the batch means plot. Parallel workers
// record stats in completion order, not batch order.
func batchAxisLabel(workers int) string {
	if workers > 1 || workers < 0 {
		return "completion order"
	}
	return "batch"
}

// plotBatchMeans writes a PNG with one line per component: the position of
// each recorded batch against the component mean of that batch.
func plotBatchMeans(outDir, xLabel string, components []string, series map[string][]batch.Stats) error {
	p := plot.New()
	p.Title.Text = "Per-batch component means"
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "mean"
	p.Add(plotter.NewGrid())

	for i, c := range components {
		list := series[c]
		if len(list) == 0 {
			continue
		}
		xys := make(plotter.XYs, 0, len(list))
		for j, s := range list {
			if math.IsNaN(s.Mean) {
				continue
			}
			xys = append(xys, plotter.XY{X: float64(j), Y: s.Mean})
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		line.Color = palette[i%len(palette)]
		line.Width = vg.Points(1.2)
		p.Add(line)
		p.Legend.Add(c, line)
	}

	if err := ensureDir(outDir); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, filepath.Join(outDir, "batch_means.png"))
}

var palette = []color.Color{
	color.RGBA{R: 20, G: 80, B: 200, A: 255},
	color.RGBA{R: 200, G: 30, B: 30, A: 255},
	color.RGBA{R: 40, G: 140, B: 40, A: 255},
	color.RGBA{R: 120, G: 120, B: 120, A: 255},
}

func meanOf(list []batch.Stats) float64 {
	sum := 0.0
	for _, s := range list {
		sum += s.Mean
	}
	return sum / float64(len(list))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseShares(s string) (dsindex.Shares, error) {
	var shares dsindex.Shares
	for _, part := range splitList(s) {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		shares = append(shares, v)
	}
	if len(shares) == 0 {
		return nil, nil
	}
	if err := shares.Validate(); err != nil {
		return nil, err
	}
	return shares, nil
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
