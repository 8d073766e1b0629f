package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile   string
	DataFile     string
	ArtifactsDir string
	Features     string
	Types        string
	K            int
	OutputFile   string
	ChartX       string
	ChartY       string
	HttpPort     int

	InitConfig bool
	Describe   bool
	Train      bool
	Cluster    bool
	Evaluate   bool
	Predict    string
	Render     bool
	HttpMode   bool
}

// Runner is the set of modes the CLI can dispatch to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunInitConfig() error
	RunDescribe() error
	RunTrain() error
	RunCluster() error
	RunEvaluate() error
	RunPredict(values string) error
	RunRender() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("bencana", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.DataFile, "data", "", "Incident table (CSV or XLSX), overrides data.path")
	fs.StringVar(&opts.ArtifactsDir, "artifacts-dir", "", "Directory for scaler.json and kmeans_model.json, overrides config")
	fs.StringVar(&opts.Features, "features", "", "Comma-separated feature columns (default: config, artifacts, then every numeric column)")
	fs.StringVar(&opts.Types, "types", "", "Comma-separated disaster types to keep before clustering")
	fs.IntVar(&opts.K, "k", 0, "Cluster count for ad-hoc fitting (default: config defaultK)")
	fs.StringVar(&opts.OutputFile, "output", "", "Output file: labeled CSV for --cluster, chart for --render (.svg or .png)")
	fs.StringVar(&opts.ChartX, "x", "pc1", "Scatter X axis: a feature column or pc1/pc2")
	fs.StringVar(&opts.ChartY, "y", "pc2", "Scatter Y axis: a feature column or pc1/pc2")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default: config http.port)")

	fs.BoolVar(&opts.InitConfig, "init-config", false, "Write the default configuration, with overrides, to --config")
	fs.BoolVar(&opts.Describe, "describe", false, "Print dataset overview and descriptive statistics")
	fs.BoolVar(&opts.Train, "train", false, "Fit scaler and model on the full table and save the artifacts")
	fs.BoolVar(&opts.Cluster, "cluster", false, "Cluster the table and print cluster sizes and scores")
	fs.BoolVar(&opts.Evaluate, "evaluate", false, "Score every cluster count in the configured range")
	fs.StringVar(&opts.Predict, "predict", "", "Predict the cluster of one record: comma-separated feature values")
	fs.BoolVar(&opts.Render, "render", false, "Render the cluster scatter chart to --output")
	fs.BoolVar(&opts.HttpMode, "http", false, "Run the dashboard HTTP server")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "bencana version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.InitConfig:
		return app.RunInitConfig()
	case opts.Describe:
		return app.RunDescribe()
	case opts.Train:
		return app.RunTrain()
	case opts.Cluster:
		return app.RunCluster()
	case opts.Evaluate:
		return app.RunEvaluate()
	case opts.Predict != "":
		return app.RunPredict(opts.Predict)
	case opts.Render:
		return app.RunRender()
	case opts.HttpMode:
		return app.RunService()
	}

	fmt.Fprintln(out, "No mode selected.")
	fmt.Fprintln(out, "Use --describe to print dataset statistics")
	fmt.Fprintln(out, "Use --train to fit and save the scaler and K-Means model")
	fmt.Fprintln(out, "Use --cluster to label the table (add --output labeled.csv to save it)")
	fmt.Fprintln(out, "Use --evaluate to compare cluster counts")
	fmt.Fprintln(out, "Use --predict=v1,v2,... to assign one record")
	fmt.Fprintln(out, "Use --render --output clusters.svg to draw the scatter chart")
	fmt.Fprintln(out, "Use --http to run the dashboard")
	fmt.Fprintln(out, "Use --init-config to write a starting config.yaml")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - data file, column matching, clustering range, artifacts, MQTT")
	return nil
}
