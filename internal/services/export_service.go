package services

import (
	"context"
)

type ExportParams struct {
	Experiment string
	// Kind is chat, votes or survey.
	Kind string
	// Format applies to survey exports: long (default) or wide.
	Format string
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ExportService struct {
	store ExperimentStore
}

func NewExportService(store ExperimentStore) *ExportService {
	return &ExportService{store: store}
}

func (s *ExportService) ExportCSV(ctx context.Context, params ExportParams) (*ExportResult, error) {
	if params.Experiment == "" {
		return nil, NewInvalidError("experiment required")
	}
	exp, err := s.store.GetExperiment(ctx, params.Experiment)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, NewNotFoundError("experiment not found")
	}

	var b []byte
	filename := exp.Name + "-" + params.Kind + ".csv"
	switch params.Kind {
	case "chat":
		b, err = ExportChatCSV(BuildChatRows(exp))
	case "votes":
		b, err = ExportVotesCSV(BuildVoteRows(exp))
	case "survey":
		switch params.Format {
		case "", "long":
			b, err = ExportAnswersLongCSV(BuildAnswerRows(exp))
		case "wide":
			b, err = ExportWideCSVStrings(buildWideAnswers(BuildAnswerRows(exp)))
			filename = exp.Name + "-survey-wide.csv"
		default:
			return nil, NewInvalidError("unsupported format")
		}
	default:
		return nil, NewInvalidError("unsupported export kind")
	}
	if err != nil {
		return nil, err
	}
	return &ExportResult{Filename: filename, ContentType: "text/csv; charset=utf-8", Data: b}, nil
}

// buildWideAnswers keys each answer by "stage.question".
func buildWideAnswers(rows []AnswerRow) map[string]map[string]string {
	mp := map[string]map[string]string{}
	for _, r := range rows {
		if mp[r.ParticipantID] == nil {
			mp[r.ParticipantID] = map[string]string{}
		}
		mp[r.ParticipantID][r.Stage+"."+r.QuestionID] = answerValue(r)
	}
	return mp
}
