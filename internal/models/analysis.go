package models

import "time"

// TrendDirection describes the period-over-period movement of a metric.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// TrendResult compares a metric's two most recent observations.
type TrendResult struct {
	MetricName    string         `json:"metric_name"`
	CurrentValue  float64        `json:"current_value"`
	PreviousValue float64        `json:"previous_value"`
	ChangePercent float64        `json:"change_percent"`
	Direction     TrendDirection `json:"trend_direction"`
	IsSignificant bool           `json:"is_significant"`
	// SignificanceLevel is "p < 0.01", "p < 0.05" or empty. It comes from a
	// Pearson correlation of the value series against its sprint index, which
	// is a crude stand-in for a real trend test. Kept as-is so report output
	// stays stable for existing consumers.
	SignificanceLevel string `json:"significance_level,omitempty"`
}

// CorrelationResult captures a pairwise linear relationship between metrics.
type CorrelationResult struct {
	Metric1        string  `json:"metric_1"`
	Metric2        string  `json:"metric_2"`
	Coefficient    float64 `json:"correlation_coefficient"`
	IsStrong       bool    `json:"is_strong"`
	Interpretation string  `json:"interpretation"`
}

// Evidence is one supporting observation attached to a hypothesis.
type Evidence struct {
	MetricName string `json:"metric_name"`
	Trend      string `json:"trend"`
	Value      string `json:"value"`
}

// ConfidenceLevel buckets a numeric confidence score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "High"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceLow    ConfidenceLevel = "Low"
)

// HypothesisCategory tags which detector produced a hypothesis, so the
// experiment mapper can dispatch without re-parsing free-text titles.
type HypothesisCategory string

const (
	CategoryNone             HypothesisCategory = ""
	CategoryReviewBottleneck HypothesisCategory = "review_bottleneck"
	CategoryStorySizing      HypothesisCategory = "story_sizing"
	CategoryQuality          HypothesisCategory = "quality"
	CategoryMorale           HypothesisCategory = "morale"
	CategoryWorkflow         HypothesisCategory = "workflow"
	CategoryTestingGap       HypothesisCategory = "testing_gap"
)

// Hypothesis is a scored, evidenced claim about a likely root cause.
type Hypothesis struct {
	Category        HypothesisCategory `json:"category,omitempty"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Confidence      ConfidenceLevel    `json:"confidence"`
	ConfidenceScore float64            `json:"confidence_score"`
	Evidence        []Evidence         `json:"evidence"`
	PotentialImpact string             `json:"potential_impact"`
	AffectedMetrics []string           `json:"affected_metrics"`
}

// ExperimentSuggestion is a timeboxed intervention mapped from a hypothesis.
type ExperimentSuggestion struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Rationale           string   `json:"rationale"`
	DurationSprints     int      `json:"duration_sprints"`
	SuccessMetrics      []string `json:"success_metrics"`
	ImplementationSteps []string `json:"implementation_steps"`
	ExpectedOutcome     string   `json:"expected_outcome"`
	// RelatedHypothesisIndex points back into the hypothesis list the
	// experiment was derived from. Nil when no hypothesis applies.
	RelatedHypothesisIndex *int `json:"related_hypothesis_index,omitempty"`
}

// ChartType enumerates supported chart payload shapes.
type ChartType string

const (
	ChartLine    ChartType = "line"
	ChartBar     ChartType = "bar"
	ChartHeatmap ChartType = "heatmap"
)

// ChartSeries is one named series of points keyed by sprint label.
type ChartSeries struct {
	Name   string    `json:"name"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// ChartData is a renderer-agnostic chart payload. The analysis core treats it
// as opaque; the web frontend and the CLI preview both consume it.
type ChartData struct {
	ChartID     string        `json:"chart_id"`
	ChartType   ChartType     `json:"chart_type"`
	Title       string        `json:"title"`
	Series      []ChartSeries `json:"series,omitempty"`
	Stacked     bool          `json:"stacked,omitempty"`
	AxisLabels  []string      `json:"axis_labels,omitempty"`
	Matrix      [][]float64   `json:"matrix,omitempty"`
	Annotations []string      `json:"annotations,omitempty"`
}

// FacilitationGuide holds talking points for a 15-minute retrospective slot.
type FacilitationGuide struct {
	RetroQuestions []string `json:"retro_questions"`
	Agenda15Min    []string `json:"agenda_15min"`
	FocusAreas     []string `json:"focus_areas"`
}

// RetrospectiveReport is the assembled, immutable insight report.
type RetrospectiveReport struct {
	ReportID    string    `json:"report_id"`
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary"`
	SprintPeriod string   `json:"sprint_period"`
	GeneratedAt time.Time `json:"generated_at"`

	Trends       []TrendResult       `json:"trends"`
	Correlations []CorrelationResult `json:"correlations"`
	Charts       []ChartData         `json:"charts"`

	Hypotheses           []Hypothesis           `json:"hypotheses"`
	SuggestedExperiments []ExperimentSuggestion `json:"suggested_experiments"`

	FacilitationGuide FacilitationGuide `json:"facilitation_guide"`

	SprintsAnalyzed   int             `json:"sprints_analyzed"`
	ConfidenceOverall ConfidenceLevel `json:"confidence_overall"`
}
