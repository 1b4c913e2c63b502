package training

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// PlotType represents different types of plots that can be generated.
type PlotType string

const (
	TrainingCurves       PlotType = "training_curves"
	LearningRateSchedule PlotType = "learning_rate_schedule"
)

// PlotData is the universal JSON format consumed by the sidecar plotting
// service.
type PlotData struct {
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name"`

	Series []SeriesData `json:"series"`
	Config PlotConfig   `json:"config"`

	Metrics map[string]interface{} `json:"metrics,omitempty"`
}

// SeriesData represents a single data series in a plot.
type SeriesData struct {
	Name  string                 `json:"name"`
	Type  string                 `json:"type"` // "line", "scatter", "bar"
	Data  []DataPoint            `json:"data"`
	Style map[string]interface{} `json:"style,omitempty"`
}

// DataPoint represents a single data point.
type DataPoint struct {
	X     interface{} `json:"x"`
	Y     interface{} `json:"y"`
	Label string      `json:"label,omitempty"`
	Color string      `json:"color,omitempty"`
}

// PlotConfig contains plot-specific configuration.
type PlotConfig struct {
	XAxisLabel  string `json:"x_axis_label"`
	YAxisLabel  string `json:"y_axis_label"`
	XAxisScale  string `json:"x_axis_scale"` // "linear", "log"
	YAxisScale  string `json:"y_axis_scale"` // "linear", "log"
	ShowLegend  bool   `json:"show_legend"`
	ShowGrid    bool   `json:"show_grid"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Interactive bool   `json:"interactive"`
}

// Collector accumulates per-pass training metrics for plotting.
type Collector struct {
	modelName string

	passes        []int
	trainingLoss  []float64
	validationNLL []float64
	learningRates []float64
}

// NewCollector creates a collector for the named model.
func NewCollector(modelName string) *Collector {
	return &Collector{modelName: modelName}
}

// RecordPass records the metrics of one completed training pass.
func (c *Collector) RecordPass(pass int, trainLoss, validScore, learningRate float64) {
	c.passes = append(c.passes, pass)
	c.trainingLoss = append(c.trainingLoss, trainLoss)
	c.validationNLL = append(c.validationNLL, validScore)
	c.learningRates = append(c.learningRates, learningRate)
}

// Passes returns the number of recorded passes.
func (c *Collector) Passes() int {
	return len(c.passes)
}

// TrainingCurvesPlot builds a loss-curve plot of training loss and
// validation NLL over passes.
func (c *Collector) TrainingCurvesPlot() PlotData {
	trainSeries := SeriesData{
		Name: "Training Loss",
		Type: "line",
		Data: make([]DataPoint, len(c.passes)),
	}
	validSeries := SeriesData{
		Name: "Validation NLL",
		Type: "line",
		Data: make([]DataPoint, len(c.passes)),
	}
	for i, p := range c.passes {
		trainSeries.Data[i] = DataPoint{X: p, Y: c.trainingLoss[i]}
		validSeries.Data[i] = DataPoint{X: p, Y: c.validationNLL[i]}
	}

	return PlotData{
		PlotType:  TrainingCurves,
		Title:     fmt.Sprintf("%s Training Curves", c.modelName),
		Timestamp: time.Now(),
		ModelName: c.modelName,
		Series:    []SeriesData{trainSeries, validSeries},
		Config: PlotConfig{
			XAxisLabel:  "Pass",
			YAxisLabel:  "Negative Log-Likelihood per Event",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  true,
			ShowGrid:    true,
			Width:       800,
			Height:      600,
			Interactive: true,
		},
	}
}

// LearningRatePlot builds a plot of the learning rate over passes.
func (c *Collector) LearningRatePlot() PlotData {
	series := SeriesData{
		Name: "Learning Rate",
		Type: "line",
		Data: make([]DataPoint, len(c.passes)),
	}
	for i, p := range c.passes {
		series.Data[i] = DataPoint{X: p, Y: c.learningRates[i]}
	}

	return PlotData{
		PlotType:  LearningRateSchedule,
		Title:     fmt.Sprintf("%s Learning Rate Schedule", c.modelName),
		Timestamp: time.Now(),
		ModelName: c.modelName,
		Series:    []SeriesData{series},
		Config: PlotConfig{
			XAxisLabel:  "Pass",
			YAxisLabel:  "Learning Rate",
			XAxisScale:  "linear",
			YAxisScale:  "log",
			ShowLegend:  false,
			ShowGrid:    true,
			Width:       800,
			Height:      600,
			Interactive: true,
		},
	}
}

// SavePlotData writes plot data as JSON to a file, for offline plotting.
func SavePlotData(plot PlotData, path string) error {
	data, err := json.MarshalIndent(plot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plot data: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write plot file: %w", err)
	}
	return nil
}
