package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kwv/bencana/cluster"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *cluster.Config
	Store      *cluster.Store
	MQTTClient mqtt.Client
	Publisher  *cluster.Publisher
	Out        io.Writer

	opts AppOptions
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{Out: os.Stdout}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.opts = opts
}

// init loads the config once and builds the shared store
func (a *App) init() error {
	if a.Store != nil {
		return nil
	}

	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.Config = config
	a.Store = cluster.NewStore(config)
	return nil
}

func (a *App) loadConfig() (*cluster.Config, error) {
	var config *cluster.Config
	path := a.opts.ConfigFile
	if _, err := os.Stat(path); path == "" || (os.IsNotExist(err) && path == "config.yaml") {
		log.Printf("No config file at %q, using defaults", path)
		config = cluster.DefaultConfig()
	} else {
		config, err = cluster.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		log.Printf("Loaded config from %s", path)
	}

	a.applyOverrides(config)
	return config, config.Validate()
}

// applyOverrides copies the command-line settings over the config file's
func (a *App) applyOverrides(config *cluster.Config) {
	if a.opts.DataFile != "" {
		config.Data.Path = a.opts.DataFile
	}
	if a.opts.ArtifactsDir != "" {
		config.Artifacts.Scaler = filepath.Join(a.opts.ArtifactsDir, cluster.DefaultScalerFile)
		config.Artifacts.Model = filepath.Join(a.opts.ArtifactsDir, cluster.DefaultModelFile)
	}
	if a.opts.Features != "" {
		config.Features = splitList(a.opts.Features)
	}
	if a.opts.HttpPort != 0 {
		config.HTTP.Port = a.opts.HttpPort
	}
}

// RunInitConfig writes the default configuration, with command-line overrides
// applied, to the --config path. An existing file is never overwritten.
func (a *App) RunInitConfig() error {
	path := a.opts.ConfigFile
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	config := cluster.DefaultConfig()
	a.applyOverrides(config)
	if err := config.Validate(); err != nil {
		return err
	}
	if err := cluster.SaveConfig(path, config); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Configuration written to %s\n", path)
	return nil
}

// RunDescribe prints the dataset overview, descriptive statistics and
// incident counts per disaster type
func (a *App) RunDescribe() error {
	if err := a.init(); err != nil {
		return err
	}
	t, err := a.Store.Table()
	if err != nil {
		return err
	}
	cols := a.Config.Columns

	o := cluster.Summarize(t, cols.DisasterType.Name, cols.Region.Name)
	fmt.Fprintf(a.Out, "\nRows: %d  Columns: %d  Disaster types: %d  Regions: %d\n",
		o.Rows, o.Columns, o.DisasterTypes, o.Regions)

	res := a.Store.Resolution()
	actual := make([]string, 0, len(res.Mapping))
	for col := range res.Mapping {
		actual = append(actual, col)
	}
	sort.Strings(actual)
	for _, col := range actual {
		fmt.Fprintf(a.Out, "Column %s read as %s\n", col, res.Mapping[col])
	}
	for _, name := range res.Unresolved {
		fmt.Fprintf(a.Out, "No column matches %s\n", name)
	}
	fmt.Fprintln(a.Out)

	fmt.Fprintf(a.Out, "%-24s %6s %10s %10s %10s %10s %10s %10s %10s\n",
		"column", "count", "mean", "std", "min", "25%", "50%", "75%", "max")
	for _, s := range cluster.Describe(t) {
		if s.Numeric {
			fmt.Fprintf(a.Out, "%-24s %6d %10.3f %10.3f %10.3f %10.3f %10.3f %10.3f %10.3f\n",
				s.Name, s.Count, s.Mean, s.Std, s.Min, s.Q25, s.Median, s.Q75, s.Max)
		} else {
			fmt.Fprintf(a.Out, "%-24s %6d  unique=%d top=%q freq=%d\n", s.Name, s.Count, s.Unique, s.Top, s.Freq)
		}
	}

	counts, err := t.ValueCounts(cols.DisasterType.Name)
	if err != nil {
		log.Printf("Warning: no incident counts per type: %v", err)
		return nil
	}
	fmt.Fprintf(a.Out, "\nIncidents per %s:\n", cols.DisasterType.Name)
	for _, vc := range counts {
		fmt.Fprintf(a.Out, "  %-28s %d\n", vc.Value, vc.Count)
	}
	return nil
}

// RunTrain fits a scaler and model on the full table and saves both artifacts
func (a *App) RunTrain() error {
	if err := a.init(); err != nil {
		return err
	}
	t, err := a.Store.Table()
	if err != nil {
		return err
	}

	features := a.Config.Features
	if len(features) == 0 {
		features = t.NumericColumns()
	}
	if err := cluster.ValidateFeatures(t, features); err != nil {
		return err
	}

	raw := cluster.Prepare(t, features)
	scaler, err := cluster.FitScaler(raw, features)
	if err != nil {
		return err
	}
	scaled, err := scaler.Transform(raw)
	if err != nil {
		return err
	}
	k := a.Config.EffectiveK(a.opts.K)
	model, err := cluster.Fit(scaled, k, a.Config.Clustering)
	if err != nil {
		return err
	}
	model.Features = append([]string(nil), features...)

	var scalerPath, modelPath string
	if a.opts.ArtifactsDir != "" {
		if scalerPath, modelPath, err = cluster.SaveArtifacts(a.opts.ArtifactsDir, scaler, model); err != nil {
			return err
		}
	} else {
		scalerPath, modelPath = a.Config.Artifacts.Scaler, a.Config.Artifacts.Model
		if !a.Config.HasArtifacts() {
			scalerPath, modelPath = cluster.DefaultScalerFile, cluster.DefaultModelFile
		}
		if err := cluster.SaveArtifactFiles(scalerPath, modelPath, scaler, model); err != nil {
			return err
		}
	}

	fmt.Fprintf(a.Out, "Trained k=%d on %d rows, features %v\n", k, t.Len(), features)
	fmt.Fprintf(a.Out, "Inertia: %.4f after %d iterations (seed %d)\n", model.Inertia, model.Iterations, model.Seed)
	fmt.Fprintf(a.Out, "Saved %s and %s\n", scalerPath, modelPath)
	return nil
}

// RunCluster labels the (optionally filtered) table and prints a summary.
// With --output the labeled table is written as CSV.
func (a *App) RunCluster() error {
	if err := a.init(); err != nil {
		return err
	}
	res, err := runClustering(a.Store, clusterRequest{K: a.opts.K, Types: splitList(a.opts.Types), Score: true})
	if err != nil {
		return err
	}

	printResult(a.Out, res)

	if a.opts.OutputFile != "" {
		f, err := os.Create(a.opts.OutputFile)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		if err := res.Labeled().WriteCSV(f, a.Config.Delimiter()); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Labeled table written to %s\n", a.opts.OutputFile)
	}
	return nil
}

// RunEvaluate scores every cluster count in the configured range
func (a *App) RunEvaluate() error {
	if err := a.init(); err != nil {
		return err
	}
	t, err := filteredTable(a.Store, splitList(a.opts.Types))
	if err != nil {
		return err
	}
	features, err := a.Store.Features()
	if err != nil {
		return err
	}

	evals, err := cluster.EvaluateRange(t, features, a.Config.Clustering)
	if errors.Is(err, cluster.ErrDegenerateInput) {
		fmt.Fprintf(a.Out, "Warning: evaluation skipped: %v\n", err)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "%3s %12s %10s %10s %10s\n", "k", "inertia", "cohesion", "separation", "silhouette")
	for _, ev := range evals {
		if ev.Scores == nil {
			fmt.Fprintf(a.Out, "%3d %12.4f  %s\n", ev.K, ev.Inertia, ev.Warning)
			continue
		}
		fmt.Fprintf(a.Out, "%3d %12.4f %10.4f %10.4f %10.4f\n",
			ev.K, ev.Inertia, ev.Scores.Cohesion, ev.Scores.Separation, ev.Scores.Silhouette)
	}
	if best, err := cluster.BestBySilhouette(evals); err == nil {
		fmt.Fprintf(a.Out, "Best silhouette at k=%d\n", best.K)
	}
	return nil
}

// RunPredict assigns one record given as comma-separated feature values.
// It requires the pre-trained artifacts.
func (a *App) RunPredict(values string) error {
	if err := a.init(); err != nil {
		return err
	}
	vals, err := parseValues(splitList(values))
	if err != nil {
		return err
	}
	label, features, err := predict(a.Store, vals)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Features: %v\nValues:   %v\nCluster:  %d\n", features, vals, label)
	return nil
}

// RunRender writes the cluster scatter chart as SVG or PNG
func (a *App) RunRender() error {
	if err := a.init(); err != nil {
		return err
	}
	out := a.opts.OutputFile
	if out == "" {
		out = "clusters.svg"
	}

	res, err := runClustering(a.Store, clusterRequest{K: a.opts.K, Types: splitList(a.opts.Types), Project: true})
	if err != nil {
		return err
	}
	chart, err := scatterFor(res, a.opts.ChartX, a.opts.ChartY)
	if err != nil {
		return err
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(a.Out, "Warning: %s\n", warning)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(out), ".png") {
		err = chart.RenderPNG(f)
	} else {
		err = chart.RenderSVG(f)
	}
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	fmt.Fprintf(a.Out, "Chart written to %s\n", out)
	return nil
}

// RunService runs the dashboard until interrupted
func (a *App) RunService() error {
	fmt.Fprintln(a.Out, "Starting bencana dashboard...")
	if err := a.init(); err != nil {
		return err
	}

	// Fail fast on an unreadable table; missing artifacts only disable prediction
	if _, err := a.Store.Table(); err != nil {
		return err
	}
	if _, err := a.Store.Artifacts(); err != nil && !errors.Is(err, cluster.ErrArtifactMissing) {
		log.Printf("Warning: prediction disabled: %v", err)
	}

	client, err := cluster.InitMQTT(&a.Config.MQTT)
	if err != nil {
		return fmt.Errorf("initializing MQTT: %w", err)
	}
	if client != nil {
		a.MQTTClient = client
		a.Publisher = cluster.NewPublisher(client, a.Config.MQTT.PublishPrefix)
		fmt.Fprintf(a.Out, "MQTT publishing to %s/clustering and %s/prediction\n", a.Publisher.Prefix(), a.Publisher.Prefix())
	}

	handler := newHTTPServer(a.Store, a.Publisher)
	port := a.Config.HTTP.Port
	go func() {
		addr := fmt.Sprintf("0.0.0.0:%d", port)
		log.Printf("[HTTP] Starting server on %s", addr)
		if err := http.ListenAndServe(addr, handler); err != nil {
			log.Fatalf("[HTTP] Server error: %v", err)
		}
	}()

	fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", port)
	fmt.Fprintln(a.Out, "  GET  /                   - Menu")
	fmt.Fprintln(a.Out, "  GET  /dataset            - Dataset view")
	fmt.Fprintln(a.Out, "  GET  /statistics         - Statistics view")
	fmt.Fprintln(a.Out, "  GET  /clustering         - Clustering and visualization")
	fmt.Fprintln(a.Out, "  GET  /evaluation         - Cluster quality scores")
	fmt.Fprintln(a.Out, "  GET  /prediction         - Single-record prediction")
	fmt.Fprintln(a.Out, "  GET  /chart/scatter.svg  - Scatter chart (also .png)")
	fmt.Fprintln(a.Out, "  GET  /chart/bar.svg      - Incidents per region (also .png)")
	fmt.Fprintln(a.Out, "  GET  /api/clustering     - Clustering result as JSON")
	fmt.Fprintln(a.Out, "  GET  /api/evaluation     - Scores per cluster count as JSON")
	fmt.Fprintln(a.Out, "  POST /api/predict        - Predict {\"values\": [...]}")
	fmt.Fprintln(a.Out, "  GET  /projection.geojson - Projected points")
	fmt.Fprintln(a.Out, "  GET  /health             - Health check")
	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintln(a.Out, "\nShutting down...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect(250)
	}
	return nil
}

// ---------------------------------------------------------------------------
// shared between CLI modes and HTTP handlers
// ---------------------------------------------------------------------------

// clusterRequest is one user selection: cluster count (0 = configured or
// pre-trained), disaster-type filter and the optional steps.
type clusterRequest struct {
	K       int
	Types   []string
	Project bool
	Score   bool
}

// filteredTable returns the store's table restricted to the given disaster types.
func filteredTable(store *cluster.Store, types []string) (*cluster.Table, error) {
	t, err := store.Table()
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return t, nil
	}
	return t.Filter(store.Config().Columns.DisasterType.Name, types)
}

// runClustering runs one request-scoped pipeline. An explicit k always fits
// ad hoc; otherwise the pre-trained artifacts are used when present.
func runClustering(store *cluster.Store, req clusterRequest) (*cluster.Result, error) {
	t, err := filteredTable(store, req.Types)
	if err != nil {
		return nil, err
	}
	features, err := store.Features()
	if err != nil {
		return nil, err
	}

	var p *cluster.Pipeline
	if req.K > 0 {
		p = store.AdHocPipeline()
	} else if p, err = store.Pipeline(); err != nil {
		return nil, err
	}

	return p.Run(t, features, cluster.RunOptions{
		K:       store.Config().EffectiveK(req.K),
		Project: req.Project,
		Score:   req.Score,
	})
}

// predictionFeatures returns the pre-trained pipeline and the feature order
// its artifacts expect
func predictionFeatures(store *cluster.Store) (*cluster.Pipeline, []string, error) {
	p, err := store.PretrainedPipeline()
	if err != nil {
		return nil, nil, err
	}
	features := append([]string(nil), p.Scaler.Features...)
	if len(features) == 0 {
		if features, err = store.Features(); err != nil {
			return nil, nil, err
		}
	}
	if err := cluster.CheckCompatible(p.Scaler, p.Model, features); err != nil {
		return nil, nil, err
	}
	return p, features, nil
}

// predict assigns one raw feature vector with the pre-trained artifacts
func predict(store *cluster.Store, values []float64) (int, []string, error) {
	p, features, err := predictionFeatures(store)
	if err != nil {
		return 0, nil, err
	}
	if len(values) != len(features) {
		return 0, nil, fmt.Errorf("%w: got %d values for %d features %v",
			cluster.ErrArtifactIncompatible, len(values), len(features), features)
	}
	label, err := cluster.PredictOne(values, p.Scaler, p.Model)
	return label, features, err
}

// scatterFor builds the scatter chart of res. Axes are feature columns of the
// labeled table or pc1/pc2 for the principal-axis projection.
// Without labels, or with a skipped projection on a pc axis, the chart has no
// points and res.Warnings says why.
func scatterFor(res *cluster.Result, x, y string) (*cluster.ScatterChart, error) {
	const title = "Visualisasi Clustering K-Means"
	if len(res.Labels) == 0 || (res.Projection == nil && (isProjectionAxis(x) || isProjectionAxis(y))) {
		return cluster.NewScatterChart(title, x, y, nil, nil, nil)
	}
	labeled := res.Labeled()
	xs, err := axisValues(res, labeled, x)
	if err != nil {
		return nil, err
	}
	ys, err := axisValues(res, labeled, y)
	if err != nil {
		return nil, err
	}
	return cluster.NewScatterChart(title, x, y, xs, ys, res.Labels)
}

func isProjectionAxis(axis string) bool {
	return strings.EqualFold(axis, "pc1") || strings.EqualFold(axis, "pc2")
}

func axisValues(res *cluster.Result, labeled *cluster.Table, axis string) ([]float64, error) {
	switch strings.ToLower(axis) {
	case "pc1", "pc2":
		if res.Projection == nil {
			return nil, fmt.Errorf("%w: no projection for axis %s", cluster.ErrDegenerateInput, axis)
		}
		if strings.EqualFold(axis, "pc1") {
			return res.Projection.X, nil
		}
		return res.Projection.Y, nil
	}
	if err := cluster.ValidateFeatures(labeled, []string{axis}); err != nil {
		return nil, err
	}
	col := cluster.Prepare(labeled, []string{axis})
	out := make([]float64, len(col))
	for i, row := range col {
		out[i] = row[0]
	}
	return out, nil
}

func printResult(w io.Writer, res *cluster.Result) {
	mode := "ad hoc"
	if res.Pretrained {
		mode = "pre-trained"
	}
	fmt.Fprintf(w, "Features: %v\n", res.Features)
	fmt.Fprintf(w, "Model: %s, k=%d, %d rows, inertia %.4f\n", mode, res.K, len(res.Labels), res.Inertia)
	for c, n := range res.Sizes {
		fmt.Fprintf(w, "  Cluster %d: %d rows\n", c, n)
	}
	if res.Scores != nil {
		fmt.Fprintf(w, "Cohesion: %.4f  Separation (Davies-Bouldin): %.4f  Silhouette: %.4f\n",
			res.Scores.Cohesion, res.Scores.Separation, res.Scores.Silhouette)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
}

// splitList splits a comma-separated list, dropping empty entries
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseValues(parts []string) ([]float64, error) {
	if len(parts) == 0 {
		return nil, errors.New("no feature values given")
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d (%q) is not a number", i+1, p)
		}
		vals[i] = v
	}
	return vals, nil
}
