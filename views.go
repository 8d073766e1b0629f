package main

import (
	"fmt"
	"html/template"
	"net/url"
	"strconv"

	"github.com/kwv/bencana/cluster"
)

var viewFuncs = template.FuncMap{
	"f3": func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) },
}

var views = template.Must(template.New("views").Funcs(viewFuncs).Parse(`
{{define "header"}}<!DOCTYPE html>
<html lang="id">
<head>
<meta charset="utf-8">
<title>{{.Title}} - Clustering Data Bencana</title>
<style>
body { font-family: sans-serif; margin: 0; display: flex; }
nav { width: 12rem; background: #f0f0f0; min-height: 100vh; padding: 1rem; }
nav a { display: block; margin: .4rem 0; }
main { padding: 1rem 2rem; flex: 1; overflow-x: auto; }
table { border-collapse: collapse; font-size: .9rem; }
th, td { border: 1px solid #ccc; padding: .2rem .5rem; text-align: right; }
th:first-child, td:first-child { text-align: left; }
.warn { color: #a65628; }
.metric { display: inline-block; margin-right: 2rem; font-size: 1.2rem; }
</style>
</head>
<body>
<nav>
<strong>Menu</strong>
<a href="/dataset">Dataset</a>
<a href="/statistics">Statistik</a>
<a href="/clustering">Clustering</a>
<a href="/evaluation">Evaluasi</a>
<a href="/prediction">Prediksi</a>
</nav>
<main>
<h1>{{.Title}}</h1>
{{end}}

{{define "footer"}}
</main>
</body>
</html>
{{end}}

{{define "table"}}<table>
<tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>{{end}}

{{define "warnings"}}{{range .}}<p class="warn">{{.}}</p>{{end}}{{end}}

{{define "index"}}{{template "header" .}}
<p>Implementasi K-Means Clustering untuk mengelompokkan data kejadian bencana.</p>
<p>Sumber data: {{.DataPath}} ({{.Rows}} baris).
{{if .Pretrained}}Model terlatih dimuat: k={{.K}}.{{else}}Tidak ada model terlatih; clustering dihitung per permintaan.{{end}}</p>
{{template "footer" .}}{{end}}

{{define "dataset"}}{{template "header" .}}
<p><span class="metric">Jumlah Baris: {{.Overview.Rows}}</span><span class="metric">Jumlah Kolom: {{.Overview.Columns}}</span></p>
{{if lt .Shown .Overview.Rows}}<p>Menampilkan {{.Shown}} baris pertama.</p>{{end}}
{{template "table" .Table}}
{{template "footer" .}}{{end}}

{{define "statistics"}}{{template "header" .}}
<p><span class="metric">Total Data: {{.Overview.Rows}}</span>
<span class="metric">Jumlah Jenis Bencana: {{.Overview.DisasterTypes}}</span>
<span class="metric">Jumlah Wilayah: {{.Overview.Regions}}</span></p>
<h2>Statistik Deskriptif</h2>
<table>
<tr><th>kolom</th><th>count</th><th>mean</th><th>std</th><th>min</th><th>25%</th><th>50%</th><th>75%</th><th>max</th><th>unique</th><th>top</th><th>freq</th></tr>
{{range .Summaries}}<tr><td>{{.Name}}</td><td>{{.Count}}</td>
{{if .Numeric}}<td>{{f3 .Mean}}</td><td>{{f3 .Std}}</td><td>{{f3 .Min}}</td><td>{{f3 .Q25}}</td><td>{{f3 .Median}}</td><td>{{f3 .Q75}}</td><td>{{f3 .Max}}</td><td></td><td></td><td></td>
{{else}}<td></td><td></td><td></td><td></td><td></td><td></td><td></td><td>{{.Unique}}</td><td>{{.Top}}</td><td>{{.Freq}}</td>{{end}}</tr>
{{end}}</table>
<h2>Jumlah Kejadian per Jenis Bencana</h2>
<table>{{range .TypeCounts}}<tr><td>{{.Value}}</td><td>{{.Count}}</td></tr>{{end}}</table>
<h2>Visualisasi per Wilayah</h2>
{{if .VisibleTypes}}<form method="get" action="/statistics">
<select name="type">{{range .VisibleTypes}}<option value="{{.}}"{{if eq . $.SelectedType}} selected{{end}}>{{.}}</option>{{end}}</select>
<button type="submit">Tampilkan</button>
</form>
<p>Menampilkan data untuk <strong>{{.SelectedType}}</strong></p>
<img src="{{.BarURL}}" alt="Jumlah kejadian {{.SelectedType}} per wilayah">
{{else}}<p class="warn">Tidak ada jenis bencana yang dapat divisualisasikan.</p>{{end}}
{{template "footer" .}}{{end}}

{{define "form"}}<form method="get">
<label>Jumlah cluster
<select name="k"><option value="">default</option>{{range .KOptions}}<option value="{{.}}"{{if eq . $.K}} selected{{end}}>{{.}}</option>{{end}}</select></label>
<label>Jenis bencana
<select name="type" multiple size="4">{{range .Types}}<option value="{{.}}"{{if index $.Selected .}} selected{{end}}>{{.}}</option>{{end}}</select></label>
{{if .Axes}}<label>Sumbu X <select name="x">{{range .Axes}}<option value="{{.}}"{{if eq . $.X}} selected{{end}}>{{.}}</option>{{end}}</select></label>
<label>Sumbu Y <select name="y">{{range .Axes}}<option value="{{.}}"{{if eq . $.Y}} selected{{end}}>{{.}}</option>{{end}}</select></label>{{end}}
<button type="submit">Terapkan</button>
</form>{{end}}

{{define "clustering"}}{{template "header" .}}
{{template "form" .Form}}
<p>Kolom numerik yang digunakan: {{range $i, $f := .Result.Features}}{{if $i}}, {{end}}{{$f}}{{end}}</p>
<p>{{if .Result.Pretrained}}Model terlatih{{else}}Model ad hoc{{end}}, k={{.Result.K}}:
{{range $c, $n := .Result.Sizes}}<span class="metric"><span style="color: {{index $.Colors $c}}">&#9632;</span> Cluster {{$c}}: {{$n}}</span>{{end}}</p>
{{template "warnings" .Result.Warnings}}
<img src="{{.ScatterURL}}" alt="Visualisasi Clustering K-Means">
<p><a href="{{.GeoJSONURL}}">Proyeksi (GeoJSON)</a></p>
<h2>Data dengan Label Cluster</h2>
{{template "table" .Labeled}}
{{template "footer" .}}{{end}}

{{define "evaluation"}}{{template "header" .}}
{{template "form" .Form}}
<h2>Clustering saat ini (k={{.Current.K}})</h2>
{{if .Current.Scores}}<p><span class="metric">Cohesion: {{f3 .Current.Scores.Cohesion}}</span>
<span class="metric">Separation (Davies-Bouldin): {{f3 .Current.Scores.Separation}}</span>
<span class="metric">Silhouette: {{f3 .Current.Scores.Silhouette}}</span></p>{{end}}
{{template "warnings" .Current.Warnings}}
<h2>Perbandingan jumlah cluster</h2>
{{template "warnings" .SweepWarnings}}
<table>
<tr><th>k</th><th>inertia</th><th>cohesion</th><th>separation</th><th>silhouette</th></tr>
{{range .Sweep}}<tr><td>{{.K}}{{if eq .K $.BestK}} *{{end}}</td><td>{{f3 .Inertia}}</td>
{{with .Scores}}<td>{{f3 .Cohesion}}</td><td>{{f3 .Separation}}</td><td>{{f3 .Silhouette}}</td>{{else}}<td colspan="3" class="warn">{{.Warning}}</td>{{end}}</tr>
{{end}}</table>
{{template "footer" .}}{{end}}

{{define "prediction"}}{{template "header" .}}
<form method="post" action="/prediction">
{{range $i, $f := .Features}}<p><label>{{$f}} <input type="number" step="any" name="v" value="{{index $.Values $i}}" required></label></p>{{end}}
<button type="submit">Prediksi</button>
</form>
{{if .Error}}<p class="warn">{{.Error}}</p>{{end}}
{{if .HasLabel}}<h2>Hasil: Cluster {{.Label}}</h2>{{end}}
{{template "footer" .}}{{end}}
`))

type indexView struct {
	Title      string
	DataPath   string
	Rows       int
	Pretrained bool
	K          int
}

type datasetView struct {
	Title    string
	Overview cluster.Overview
	Table    *cluster.Table
	Shown    int
}

type statisticsView struct {
	Title        string
	Overview     cluster.Overview
	Summaries    []cluster.ColumnSummary
	TypeCounts   []cluster.ValueCount
	VisibleTypes []string
	SelectedType string
	BarURL       string
}

// formView is the shared clustering selection form
type formView struct {
	KOptions []int
	K        int
	Types    []string
	Selected map[string]bool
	Axes     []string
	X, Y     string
}

type clusteringView struct {
	Title      string
	Form       formView
	Result     *cluster.Result
	Labeled    *cluster.Table
	Colors     []string
	ScatterURL string
	GeoJSONURL string
}

type evaluationView struct {
	Title         string
	Form          formView
	Current       *cluster.Result
	Sweep         []cluster.Evaluation
	SweepWarnings []string // why Sweep is empty
	BestK         int
}

type predictionView struct {
	Title    string
	Features []string
	Values   []string
	Error    string
	HasLabel bool
	Label    int
}

// selectionQuery encodes a selection back into query parameters
func selectionQuery(req clusterRequest, x, y string) url.Values {
	q := url.Values{}
	if req.K > 0 {
		q.Set("k", strconv.Itoa(req.K))
	}
	for _, t := range req.Types {
		q.Add("type", t)
	}
	if x != "" {
		q.Set("x", x)
	}
	if y != "" {
		q.Set("y", y)
	}
	return q
}

// clusterColors returns CSS colors matching the chart palette
func clusterColors(k int) []string {
	out := make([]string, k)
	for i := range out {
		c := cluster.ClusterColor(i)
		out[i] = fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return out
}
