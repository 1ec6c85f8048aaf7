package models

import "time"

// SprintSnapshot holds the raw metrics captured for one sprint. Every metric
// field is optional: a nil pointer means the metric was not collected for that
// sprint and must be excluded from analysis rather than read as zero.
type SprintSnapshot struct {
	SprintID   string    `json:"sprint_id"`
	SprintName string    `json:"sprint_name"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`

	// Happiness score on a 0-10 scale.
	TeamHappiness *float64 `json:"team_happiness,omitempty"`

	StoryPointsCompleted   *int           `json:"story_points_completed,omitempty"`
	StoryPointsPlanned     *int           `json:"story_points_planned,omitempty"`
	StoryPointDistribution map[string]int `json:"story_point_distribution,omitempty"`

	ItemsCompleted          *int     `json:"items_completed,omitempty"`
	ItemsCarriedOver        *int     `json:"items_carried_over,omitempty"`
	ItemsOutOfSprintPercent *float64 `json:"items_out_of_sprint_percent,omitempty"`

	// Defect rates as bugs per completed ticket.
	DefectRateProduction *float64 `json:"defect_rate_production,omitempty"`
	DefectRateAll        *float64 `json:"defect_rate_all,omitempty"`

	BugsProd  *int `json:"bugs_prod,omitempty"`
	BugsAcc   *int `json:"bugs_acc,omitempty"`
	BugsTest  *int `json:"bugs_test,omitempty"`
	BugsDev   *int `json:"bugs_dev,omitempty"`
	BugsOther *int `json:"bugs_other,omitempty"`

	OpenBugsCount *int `json:"open_bugs_count,omitempty"`

	BugsMissedTesting   *int `json:"bugs_missed_testing,omitempty"`
	BugsMissedImpact    *int `json:"bugs_missed_impact,omitempty"`
	BugsRequirementGap  *int `json:"bugs_requirement_gap,omitempty"`
	BugsConfiguration   *int `json:"bugs_configuration,omitempty"`
	BugsThirdParty      *int `json:"bugs_third_party,omitempty"`
	BugsDatabase        *int `json:"bugs_database,omitempty"`
	BugsSecurity        *int `json:"bugs_security,omitempty"`

	// Phase durations in hours.
	CodingTime  *float64 `json:"coding_time,omitempty"`
	ReviewTime  *float64 `json:"review_time,omitempty"`
	TestingTime *float64 `json:"testing_time,omitempty"`
}

// Metric name constants for the fields the analyzers care about by name.
const (
	MetricTeamHappiness           = "team_happiness"
	MetricItemsCarriedOver        = "items_carried_over"
	MetricItemsOutOfSprintPercent = "items_out_of_sprint_percent"
	MetricDefectRateProduction    = "defect_rate_production"
	MetricCodingTime              = "coding_time"
	MetricReviewTime              = "review_time"
	MetricTestingTime             = "testing_time"
)

// Story size buckets used in StoryPointDistribution.
const (
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"
)

type metricAccessor struct {
	name string
	get  func(*SprintSnapshot) *float64
}

func intMetric(get func(*SprintSnapshot) *int) func(*SprintSnapshot) *float64 {
	return func(s *SprintSnapshot) *float64 {
		v := get(s)
		if v == nil {
			return nil
		}
		f := float64(*v)
		return &f
	}
}

// metricRegistry enumerates the numeric metrics in a fixed order. Identity,
// date and distribution fields are deliberately not listed.
var metricRegistry = []metricAccessor{
	{MetricTeamHappiness, func(s *SprintSnapshot) *float64 { return s.TeamHappiness }},
	{"story_points_completed", intMetric(func(s *SprintSnapshot) *int { return s.StoryPointsCompleted })},
	{"story_points_planned", intMetric(func(s *SprintSnapshot) *int { return s.StoryPointsPlanned })},
	{"items_completed", intMetric(func(s *SprintSnapshot) *int { return s.ItemsCompleted })},
	{MetricItemsCarriedOver, intMetric(func(s *SprintSnapshot) *int { return s.ItemsCarriedOver })},
	{MetricItemsOutOfSprintPercent, func(s *SprintSnapshot) *float64 { return s.ItemsOutOfSprintPercent }},
	{MetricDefectRateProduction, func(s *SprintSnapshot) *float64 { return s.DefectRateProduction }},
	{"defect_rate_all", func(s *SprintSnapshot) *float64 { return s.DefectRateAll }},
	{"bugs_prod", intMetric(func(s *SprintSnapshot) *int { return s.BugsProd })},
	{"bugs_acc", intMetric(func(s *SprintSnapshot) *int { return s.BugsAcc })},
	{"bugs_test", intMetric(func(s *SprintSnapshot) *int { return s.BugsTest })},
	{"bugs_dev", intMetric(func(s *SprintSnapshot) *int { return s.BugsDev })},
	{"bugs_other", intMetric(func(s *SprintSnapshot) *int { return s.BugsOther })},
	{"open_bugs_count", intMetric(func(s *SprintSnapshot) *int { return s.OpenBugsCount })},
	{"bugs_missed_testing", intMetric(func(s *SprintSnapshot) *int { return s.BugsMissedTesting })},
	{"bugs_missed_impact", intMetric(func(s *SprintSnapshot) *int { return s.BugsMissedImpact })},
	{"bugs_requirement_gap", intMetric(func(s *SprintSnapshot) *int { return s.BugsRequirementGap })},
	{"bugs_configuration", intMetric(func(s *SprintSnapshot) *int { return s.BugsConfiguration })},
	{"bugs_third_party", intMetric(func(s *SprintSnapshot) *int { return s.BugsThirdParty })},
	{"bugs_database", intMetric(func(s *SprintSnapshot) *int { return s.BugsDatabase })},
	{"bugs_security", intMetric(func(s *SprintSnapshot) *int { return s.BugsSecurity })},
	{MetricCodingTime, func(s *SprintSnapshot) *float64 { return s.CodingTime }},
	{MetricReviewTime, func(s *SprintSnapshot) *float64 { return s.ReviewTime }},
	{MetricTestingTime, func(s *SprintSnapshot) *float64 { return s.TestingTime }},
}

// MetricNames returns the analyzable metric names in registry order.
func MetricNames() []string {
	names := make([]string, 0, len(metricRegistry))
	for _, m := range metricRegistry {
		names = append(names, m.name)
	}
	return names
}

// MetricValue reads a named metric from a snapshot. The second return is false
// when the metric name is unknown or the value is absent.
func MetricValue(s *SprintSnapshot, name string) (float64, bool) {
	for _, m := range metricRegistry {
		if m.name != name {
			continue
		}
		v := m.get(s)
		if v == nil {
			return 0, false
		}
		return *v, true
	}
	return 0, false
}

// KnownMetric reports whether the name refers to a registered numeric metric.
func KnownMetric(name string) bool {
	for _, m := range metricRegistry {
		if m.name == name {
			return true
		}
	}
	return false
}

// TotalBugs sums the per-environment bug counts, treating absent counts as
// zero contributions.
func (s *SprintSnapshot) TotalBugs() int {
	total := 0
	for _, v := range []*int{s.BugsProd, s.BugsAcc, s.BugsTest, s.BugsDev, s.BugsOther} {
		if v != nil {
			total += *v
		}
	}
	return total
}
