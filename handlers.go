package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kwv/bencana/cluster"
)

// datasetRowLimit is the default number of rows shown on /dataset
const datasetRowLimit = 200

// errBadRequest marks malformed query parameters and request bodies
var errBadRequest = errors.New("bad request")

// chart is implemented by the scatter and bar charts
type chart interface {
	RenderSVG(w io.Writer) error
	RenderPNG(w io.Writer) error
}

// newHTTPServer creates an HTTP server with all endpoints. pub may be nil,
// in which case nothing is published.
func newHTTPServer(store *cluster.Store, pub *cluster.Publisher) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		_, tableErr := store.Table()
		_, artErr := store.Artifacts()
		status := struct {
			Status     string    `json:"status"`
			Timestamp  time.Time `json:"timestamp"`
			HasTable   bool      `json:"hasTable"`
			Pretrained bool      `json:"pretrained"`
		}{
			Status:     "ok",
			Timestamp:  time.Now(),
			HasTable:   tableErr == nil,
			Pretrained: artErr == nil,
		}
		writeJSON(w, status)
	})

	// Menu
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		t, err := store.Table()
		if err != nil {
			writeError(w, r, err)
			return
		}
		view := indexView{Title: "Clustering Data Bencana", DataPath: store.Config().Data.Path, Rows: t.Len()}
		if a, err := store.Artifacts(); err == nil {
			view.Pretrained = true
			view.K = a.Model.K()
		}
		render(w, "index", view)
	})

	// Raw table, first rows only
	mux.HandleFunc("/dataset", func(w http.ResponseWriter, r *http.Request) {
		t, err := store.Table()
		if err != nil {
			writeError(w, r, err)
			return
		}
		limit := datasetRowLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				writeError(w, r, fmt.Errorf("%w: limit %q", errBadRequest, s))
				return
			}
			limit = n
		}
		shown := min(limit, t.Len())
		cfg := store.Config()
		render(w, "dataset", datasetView{
			Title:    "Dataset",
			Overview: cluster.Summarize(t, cfg.Columns.DisasterType.Name, cfg.Columns.Region.Name),
			Table:    &cluster.Table{Columns: t.Columns, Rows: t.Rows[:shown]},
			Shown:    shown,
		})
	})

	// Descriptive statistics and incidents per region for one type
	mux.HandleFunc("/statistics", func(w http.ResponseWriter, r *http.Request) {
		t, err := store.Table()
		if err != nil {
			writeError(w, r, err)
			return
		}
		cfg := store.Config()
		typeCol := cfg.Columns.DisasterType.Name

		view := statisticsView{
			Title:     "Statistik",
			Overview:  cluster.Summarize(t, typeCol, cfg.Columns.Region.Name),
			Summaries: cluster.Describe(t),
		}
		if counts, err := t.ValueCounts(typeCol); err == nil {
			view.TypeCounts = counts
		}
		view.VisibleTypes, _ = cluster.VisibleTypes(t, typeCol, cfg.DisasterTypes)
		view.SelectedType = r.URL.Query().Get("type")
		if view.SelectedType == "" && len(view.VisibleTypes) > 0 {
			view.SelectedType = view.VisibleTypes[0]
		}
		view.BarURL = "/chart/bar.svg?" + url.Values{"type": {view.SelectedType}}.Encode()
		render(w, "statistics", view)
	})

	// Clustering with chart and labeled table
	mux.HandleFunc("/clustering", func(w http.ResponseWriter, r *http.Request) {
		req, err := parseClusterRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		x, y := chartAxes(r)
		res, err := runClustering(store, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		render(w, "clustering", clusteringView{
			Title:      "Clustering",
			Form:       buildForm(store, req, res.Features, x, y),
			Result:     res,
			Labeled:    res.Labeled(),
			Colors:     clusterColors(res.K),
			ScatterURL: "/chart/scatter.svg?" + selectionQuery(req, x, y).Encode(),
			GeoJSONURL: "/projection.geojson?" + selectionQuery(req, "", "").Encode(),
		})
	})

	// Scores for the current clustering plus a sweep over k
	mux.HandleFunc("/evaluation", func(w http.ResponseWriter, r *http.Request) {
		req, err := parseClusterRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		req.Score = true
		current, err := runClustering(store, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		view := evaluationView{
			Title:   "Evaluasi",
			Form:    buildForm(store, req, nil, "", ""),
			Current: current,
		}
		sweep, err := evaluateRange(store, req.Types)
		switch {
		case errors.Is(err, cluster.ErrDegenerateInput):
			view.SweepWarnings = []string{fmt.Sprintf("perbandingan dilewati: %v", err)}
		case err != nil:
			writeError(w, r, err)
			return
		}
		view.Sweep = sweep
		if best, err := cluster.BestBySilhouette(sweep); err == nil {
			view.BestK = best.K
		}
		render(w, "evaluation", view)
	})

	// Single-record prediction form
	mux.HandleFunc("/prediction", func(w http.ResponseWriter, r *http.Request) {
		view := predictionView{Title: "Prediksi Cluster"}
		_, features, err := predictionFeatures(store)
		if err != nil {
			view.Features, _ = store.Features()
			view.Values = make([]string, len(view.Features))
			view.Error = fmt.Sprintf("Model terlatih tidak tersedia: %v", err)
			render(w, "prediction", view)
			return
		}
		view.Features = features
		view.Values = make([]string, len(features))

		if r.Method == http.MethodPost {
			if err := r.ParseForm(); err != nil {
				writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
				return
			}
			copy(view.Values, r.PostForm["v"])
			vals, err := parseValues(r.PostForm["v"])
			if err == nil {
				view.Label, _, err = predict(store, vals)
			}
			if err != nil {
				view.Error = err.Error()
			} else {
				view.HasLabel = true
				publishPrediction(pub, features, vals, view.Label)
			}
		}
		render(w, "prediction", view)
	})

	// Charts
	scatter := func(format string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			req, err := parseClusterRequest(r)
			if err != nil {
				writeError(w, r, err)
				return
			}
			req.Project = true
			x, y := chartAxes(r)
			res, err := runClustering(store, req)
			if err != nil {
				writeError(w, r, err)
				return
			}
			c, err := scatterFor(res, x, y)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeChart(w, r, c, format)
		}
	}
	mux.HandleFunc("/chart/scatter.svg", scatter("svg"))
	mux.HandleFunc("/chart/scatter.png", scatter("png"))

	bar := func(format string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			t, err := store.Table()
			if err != nil {
				writeError(w, r, err)
				return
			}
			cfg := store.Config()
			typeCol, regionCol := cfg.Columns.DisasterType.Name, cfg.Columns.Region.Name
			visible, err := cluster.VisibleTypes(t, typeCol, cfg.DisasterTypes)
			if err != nil {
				writeError(w, r, err)
				return
			}

			typ := strings.TrimSpace(r.URL.Query().Get("type"))
			if typ == "" && len(visible) > 0 {
				typ = visible[0]
			}
			if !containsFold(visible, typ) {
				http.Error(w, fmt.Sprintf("No region chart for disaster type %q", typ), http.StatusNotFound)
				return
			}

			counts, err := cluster.RegionCounts(t, typeCol, regionCol, typ, cfg.DisasterTypes)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeChart(w, r, cluster.NewBarChart(fmt.Sprintf("Jumlah Kejadian %s per Wilayah", typ), counts), format)
		}
	}
	mux.HandleFunc("/chart/bar.svg", bar("svg"))
	mux.HandleFunc("/chart/bar.png", bar("png"))

	// Projected points as a GeoJSON FeatureCollection
	mux.HandleFunc("/projection.geojson", func(w http.ResponseWriter, r *http.Request) {
		req, err := parseClusterRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		req.Project = true
		res, err := runClustering(store, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		// A skipped projection yields an empty collection
		proj, labels := res.Projection, res.Labels
		if proj == nil {
			proj, labels = &cluster.Projection{}, nil
		}
		data, err := cluster.ProjectionGeoJSON(proj, labels)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			log.Printf("[HTTP] Error writing GeoJSON: %v", err)
		}
	})

	// JSON API
	mux.HandleFunc("/api/clustering", func(w http.ResponseWriter, r *http.Request) {
		req, err := parseClusterRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		req.Project, req.Score = true, true
		res, err := runClustering(store, req)
		if err != nil {
			writeError(w, r, err)
			return
		}

		var runID string
		if pub != nil {
			if runID, err = pub.PublishClustering(res); err != nil {
				log.Printf("[MQTT] Failed to publish clustering: %v", err)
			}
		}
		writeJSON(w, struct {
			RunID string `json:"runId,omitempty"`
			*cluster.Result
		}{runID, res})
	})

	mux.HandleFunc("/api/evaluation", func(w http.ResponseWriter, r *http.Request) {
		req, err := parseClusterRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := struct {
			Evaluations []cluster.Evaluation `json:"evaluations"`
			BestK       int                  `json:"bestK,omitempty"`
			Warning     string               `json:"warning,omitempty"`
		}{Evaluations: []cluster.Evaluation{}}
		evals, err := evaluateRange(store, req.Types)
		switch {
		case errors.Is(err, cluster.ErrDegenerateInput):
			resp.Warning = err.Error()
		case err != nil:
			writeError(w, r, err)
			return
		default:
			resp.Evaluations = evals
		}
		if best, err := cluster.BestBySilhouette(evals); err == nil {
			resp.BestK = best.K
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("/api/predict", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Values []float64 `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, fmt.Errorf("%w: decoding body: %v", errBadRequest, err))
			return
		}
		if len(body.Values) == 0 {
			writeError(w, r, fmt.Errorf("%w: no feature values given", errBadRequest))
			return
		}

		label, features, err := predict(store, body.Values)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, struct {
			RunID    string    `json:"runId,omitempty"`
			Cluster  int       `json:"cluster"`
			Features []string  `json:"features"`
			Values   []float64 `json:"values"`
		}{publishPrediction(pub, features, body.Values, label), label, features, body.Values})
	})

	return mux
}

// parseClusterRequest reads k and the repeated type parameters. An empty k
// or "auto" selects the configured or pre-trained model.
func parseClusterRequest(r *http.Request) (clusterRequest, error) {
	var req clusterRequest
	q := r.URL.Query()
	if s := strings.TrimSpace(q.Get("k")); s != "" && !strings.EqualFold(s, "auto") {
		k, err := strconv.Atoi(s)
		if err != nil || k < 1 {
			return req, fmt.Errorf("%w: k=%q", cluster.ErrInvalidK, s)
		}
		req.K = k
	}
	for _, v := range q["type"] {
		req.Types = append(req.Types, splitList(v)...)
	}
	return req, nil
}

func chartAxes(r *http.Request) (string, string) {
	x, y := r.URL.Query().Get("x"), r.URL.Query().Get("y")
	if x == "" {
		x = "pc1"
	}
	if y == "" {
		y = "pc2"
	}
	return x, y
}

// buildForm fills the selection form. Axis choices are offered only when
// features is non-empty.
func buildForm(store *cluster.Store, req clusterRequest, features []string, x, y string) formView {
	cfg := store.Config()
	form := formView{K: req.K, Selected: make(map[string]bool), X: x, Y: y}
	for k := cfg.Clustering.MinK; k <= cfg.Clustering.MaxK; k++ {
		form.KOptions = append(form.KOptions, k)
	}
	if t, err := store.Table(); err == nil {
		form.Types, _ = t.Unique(cfg.Columns.DisasterType.Name)
	}
	for _, typ := range req.Types {
		form.Selected[strings.ToLower(strings.TrimSpace(typ))] = true
	}
	if len(features) > 0 {
		form.Axes = append([]string{"pc1", "pc2"}, features...)
	}
	return form
}

// evaluateRange sweeps the configured k range over the filtered table
func evaluateRange(store *cluster.Store, types []string) ([]cluster.Evaluation, error) {
	t, err := filteredTable(store, types)
	if err != nil {
		return nil, err
	}
	features, err := store.Features()
	if err != nil {
		return nil, err
	}
	return cluster.EvaluateRange(t, features, store.Config().Clustering)
}

// publishPrediction publishes when MQTT is enabled and returns the run ID,
// or "" when nothing was published
func publishPrediction(pub *cluster.Publisher, features []string, values []float64, label int) string {
	if pub == nil {
		return ""
	}
	runID, err := pub.PublishPrediction(features, values, label)
	if err != nil {
		log.Printf("[MQTT] Failed to publish prediction: %v", err)
		return ""
	}
	return runID
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}

// writeError maps pipeline errors to status codes: schema and input problems
// are the client's, missing or mismatched artifacts make the service unavailable.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, cluster.ErrMissingColumns),
		errors.Is(err, cluster.ErrNoFeatures),
		errors.Is(err, cluster.ErrInvalidK),
		errors.Is(err, cluster.ErrDegenerateInput):
		status = http.StatusBadRequest
	case errors.Is(err, cluster.ErrArtifactMissing),
		errors.Is(err, cluster.ErrArtifactIncompatible):
		status = http.StatusServiceUnavailable
	}
	log.Printf("[HTTP] %s %s: %d %v", r.Method, r.URL.Path, status, err)
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding JSON: %v", err)
	}
}

// render executes a view into a buffer so template errors still produce a 500
func render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := views.ExecuteTemplate(&buf, name, data); err != nil {
		log.Printf("[HTTP] Error rendering %s: %v", name, err)
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[HTTP] Error writing %s: %v", name, err)
	}
}

func writeChart(w http.ResponseWriter, r *http.Request, c chart, format string) {
	var buf bytes.Buffer
	contentType := "image/svg+xml"
	renderFn := c.RenderSVG
	if format == "png" {
		contentType, renderFn = "image/png", c.RenderPNG
	}
	if err := renderFn(&buf); err != nil {
		writeError(w, r, fmt.Errorf("rendering %s chart: %w", format, err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[HTTP] Error writing chart: %v", err)
	}
}
