package services

import (
	"context"
	"sort"

	"github.com/deliblab/deliblab/internal/experiment"
)

// AnalyticsService summarizes an experiment for the experimenter dashboard.
type AnalyticsService struct {
	store ExperimentStore
}

type StageCount struct {
	Stage     string `json:"stage"`
	Completed int    `json:"completed"`
	WorkingOn int    `json:"workingOn"`
	Future    int    `json:"future"`
}

type AnalyticsQuestion struct {
	Stage      string         `json:"stage"`
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Choices    map[string]int `json:"choices,omitempty"`
	Confidence float64        `json:"meanConfidence,omitempty"`
	Histogram  []int          `json:"histogram,omitempty"`
	Total      int            `json:"total"`
}

type AnalyticsTimeseries struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type SurveyConsistency struct {
	Stage string  `json:"stage"`
	Alpha float64 `json:"alpha"`
	N     int     `json:"n"`
}

type AnalyticsSummary struct {
	Experiment   string                            `json:"experiment"`
	Participants int                               `json:"participants"`
	Finished     int                               `json:"finished"`
	Stages       []StageCount                      `json:"stages"`
	Questions    []AnalyticsQuestion               `json:"questions"`
	Messages     []AnalyticsTimeseries             `json:"messages"`
	Consistency  []SurveyConsistency               `json:"consistency"`
	Leaders      map[string][]experiment.Candidate `json:"leaders"`
}

func NewAnalyticsService(store ExperimentStore) *AnalyticsService {
	return &AnalyticsService{store: store}
}

func (s *AnalyticsService) Summary(ctx context.Context, name string) (*AnalyticsSummary, error) {
	exp, err := s.store.GetExperiment(ctx, name)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, NewNotFoundError("experiment not found")
	}
	out := &AnalyticsSummary{
		Experiment:   exp.Name,
		Participants: len(exp.Participants),
		Stages:       buildStageCounts(exp),
		Questions:    buildAnalyticsQuestions(exp),
		Messages:     buildTimeseries(messagesByDay(exp)),
		Leaders:      map[string][]experiment.Candidate{},
	}
	for _, p := range exp.Participants {
		if p.Finished() {
			out.Finished++
		}
	}
	for _, stage := range exp.StageNames {
		switch stageKind(exp, stage) {
		case experiment.KindSurvey:
			matrix := buildAlphaMatrix(exp, stage)
			out.Consistency = append(out.Consistency, SurveyConsistency{Stage: stage, Alpha: CronbachAlpha(matrix), N: len(matrix)})
		case experiment.KindLeaderVote:
			ranking, err := experiment.Tally(exp, stage)
			if err != nil {
				return nil, err
			}
			out.Leaders[stage] = ranking
		}
	}
	return out, nil
}

func stageKind(exp *experiment.Experiment, stage string) experiment.StageKind {
	for _, p := range exp.Participants {
		if st, err := p.Stage(stage); err == nil {
			return st.Kind
		}
	}
	return ""
}

func buildStageCounts(exp *experiment.Experiment) []StageCount {
	idx := make(map[string]int, len(exp.StageNames))
	out := make([]StageCount, 0, len(exp.StageNames))
	for i, name := range exp.StageNames {
		idx[name] = i
		out = append(out, StageCount{Stage: name})
	}
	for _, p := range exp.Participants {
		for _, name := range p.Completed {
			out[idx[name]].Completed++
		}
		if !p.Finished() {
			out[idx[p.WorkingOn]].WorkingOn++
		}
		for _, name := range p.Future {
			out[idx[name]].Future++
		}
	}
	return out
}

// buildAnalyticsQuestions aggregates every answered survey question across participants,
// in stage then question order.
func buildAnalyticsQuestions(exp *experiment.Experiment) []AnalyticsQuestion {
	var out []AnalyticsQuestion
	for _, stage := range exp.StageNames {
		index := map[string]int{}
		for _, pid := range exp.ParticipantIDs() {
			st, err := exp.Participants[pid].Stage(stage)
			if err != nil {
				continue
			}
			cfg, ok := st.Config.(*experiment.SurveyConfig)
			if !ok {
				continue
			}
			for _, q := range cfg.Questions {
				i, ok := index[q.ID]
				if !ok {
					i = len(out)
					index[q.ID] = i
					aq := AnalyticsQuestion{Stage: stage, ID: q.ID, Kind: string(q.Kind)}
					switch q.Kind {
					case experiment.QuestionRating:
						aq.Choices = map[string]int{}
					case experiment.QuestionScale:
						aq.Histogram = make([]int, q.UpperBound+1)
					}
					out = append(out, aq)
				}
				addAnswer(&out[i], q)
			}
		}
	}
	for i := range out {
		if out[i].Kind == string(experiment.QuestionRating) && out[i].Total > 0 {
			out[i].Confidence /= float64(out[i].Total)
		}
	}
	return out
}

func addAnswer(aq *AnalyticsQuestion, q *experiment.Question) {
	switch q.Kind {
	case experiment.QuestionRating:
		if q.Rating == nil || q.Rating.Choice == experiment.ChoiceNone {
			return
		}
		item := q.Rating.Item1
		if q.Rating.Choice == experiment.ChoiceItem2 {
			item = q.Rating.Item2
		}
		aq.Choices[item]++
		if q.Rating.Confidence != nil {
			aq.Confidence += *q.Rating.Confidence
		}
		aq.Total++
	case experiment.QuestionScale:
		if q.Score == nil || *q.Score < 0 || *q.Score >= len(aq.Histogram) {
			return
		}
		aq.Histogram[*q.Score]++
		aq.Total++
	case experiment.QuestionText:
		if q.Answer != "" {
			aq.Total++
		}
	case experiment.QuestionCheck:
		if q.Checked {
			aq.Total++
		}
	}
}

// buildAlphaMatrix collects the scale answers of one survey stage, keeping only
// participants who scored every scale question.
func buildAlphaMatrix(exp *experiment.Experiment, stage string) [][]float64 {
	var matrix [][]float64
	for _, pid := range exp.ParticipantIDs() {
		st, err := exp.Participants[pid].Stage(stage)
		if err != nil {
			continue
		}
		cfg, ok := st.Config.(*experiment.SurveyConfig)
		if !ok {
			continue
		}
		row := make([]float64, 0, len(cfg.Questions))
		complete := true
		for _, q := range cfg.Questions {
			if q.Kind != experiment.QuestionScale {
				continue
			}
			if q.Score == nil {
				complete = false
				break
			}
			row = append(row, float64(*q.Score))
		}
		if complete && len(row) > 0 {
			matrix = append(matrix, row)
		}
	}
	return matrix
}

// messagesByDay counts user messages per UTC day, reading one participant's copy of each
// chat stage.
func messagesByDay(exp *experiment.Experiment) map[string]int {
	counts := map[string]int{}
	for _, row := range BuildChatRows(exp) {
		if row.Kind != string(experiment.MessageUser) || len(row.Timestamp) < 10 {
			continue
		}
		counts[row.Timestamp[:10]]++
	}
	return counts
}

func buildTimeseries(counts map[string]int) []AnalyticsTimeseries {
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]AnalyticsTimeseries, 0, len(days))
	for _, d := range days {
		out = append(out, AnalyticsTimeseries{Date: d, Count: counts[d]})
	}
	return out
}
