package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"time"

	"github.com/deliblab/deliblab/internal/experiment"
)

// ChatRow is one message of a chat stage. Every participant holds a copy of each
// message, so exports read a single participant's copy.
type ChatRow struct {
	Stage     string
	MessageID string
	Kind      string
	FromUser  string
	FromName  string
	Item1     string
	Item2     string
	Text      string
	Timestamp string
}

type VoteRow struct {
	Stage  string
	Voter  string
	Target string
	Vote   string
}

type AnswerRow struct {
	Stage         string
	ParticipantID string
	QuestionID    string
	Kind          string
	Choice        string
	Confidence    string
	Score         string
	Text          string
	Checked       string
}

func BuildChatRows(exp *experiment.Experiment) []ChatRow {
	ids := exp.ParticipantIDs()
	if len(ids) == 0 {
		return nil
	}
	first := exp.Participants[ids[0]]
	var rows []ChatRow
	for _, name := range exp.StageNames {
		st, err := first.Stage(name)
		if err != nil {
			continue
		}
		chat, ok := st.Config.(*experiment.ChatConfig)
		if !ok {
			continue
		}
		for _, m := range chat.Messages {
			row := ChatRow{Stage: name, MessageID: m.ID, Kind: string(m.Kind), FromUser: m.FromUserID, Text: m.Text, Timestamp: m.Timestamp.Format(time.RFC3339)}
			if m.FromProfile != nil {
				row.FromName = m.FromProfile.Name
			}
			if m.ItemPair != nil {
				row.Item1, row.Item2 = m.ItemPair.Item1, m.ItemPair.Item2
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func BuildVoteRows(exp *experiment.Experiment) []VoteRow {
	var rows []VoteRow
	for _, name := range exp.StageNames {
		for _, voter := range exp.ParticipantIDs() {
			st, err := exp.Participants[voter].Stage(name)
			if err != nil {
				continue
			}
			cfg, ok := st.Config.(*experiment.VoteConfig)
			if !ok {
				continue
			}
			targets := make([]string, 0, len(cfg.Votes))
			for t := range cfg.Votes {
				targets = append(targets, t)
			}
			sort.Strings(targets)
			for _, t := range targets {
				rows = append(rows, VoteRow{Stage: name, Voter: voter, Target: t, Vote: string(cfg.Votes[t])})
			}
		}
	}
	return rows
}

func BuildAnswerRows(exp *experiment.Experiment) []AnswerRow {
	var rows []AnswerRow
	for _, name := range exp.StageNames {
		for _, pid := range exp.ParticipantIDs() {
			st, err := exp.Participants[pid].Stage(name)
			if err != nil {
				continue
			}
			cfg, ok := st.Config.(*experiment.SurveyConfig)
			if !ok {
				continue
			}
			for _, q := range cfg.Questions {
				rows = append(rows, answerRow(name, pid, q))
			}
		}
	}
	return rows
}

func answerRow(stage, pid string, q *experiment.Question) AnswerRow {
	row := AnswerRow{Stage: stage, ParticipantID: pid, QuestionID: q.ID, Kind: string(q.Kind)}
	switch q.Kind {
	case experiment.QuestionRating:
		if q.Rating != nil {
			row.Choice = string(q.Rating.Choice)
			if q.Rating.Choice == experiment.ChoiceItem1 {
				row.Choice = q.Rating.Item1
			} else if q.Rating.Choice == experiment.ChoiceItem2 {
				row.Choice = q.Rating.Item2
			}
			if q.Rating.Confidence != nil {
				row.Confidence = strconv.FormatFloat(*q.Rating.Confidence, 'f', -1, 64)
			}
		}
	case experiment.QuestionScale:
		if q.Score != nil {
			row.Score = itoa(*q.Score)
		}
	case experiment.QuestionText:
		row.Text = q.Answer
	case experiment.QuestionCheck:
		row.Checked = strconv.FormatBool(q.Checked)
	}
	return row
}

// answerValue is the single cell used for q in the wide survey export.
func answerValue(r AnswerRow) string {
	switch {
	case r.Choice != "":
		return r.Choice
	case r.Score != "":
		return r.Score
	case r.Checked != "":
		return r.Checked
	}
	return r.Text
}

func ExportChatCSV(rows []ChatRow) ([]byte, error) {
	return writeCSV([]string{"stage", "message_id", "kind", "from_user_id", "from_name", "item1", "item2", "text", "timestamp"}, len(rows), func(i int) []string {
		r := rows[i]
		return []string{r.Stage, r.MessageID, r.Kind, r.FromUser, r.FromName, r.Item1, r.Item2, r.Text, r.Timestamp}
	})
}

func ExportVotesCSV(rows []VoteRow) ([]byte, error) {
	return writeCSV([]string{"stage", "voter_id", "target_id", "vote"}, len(rows), func(i int) []string {
		r := rows[i]
		return []string{r.Stage, r.Voter, r.Target, r.Vote}
	})
}

// ExportAnswersLongCSV renders one row per participant and question.
func ExportAnswersLongCSV(rows []AnswerRow) ([]byte, error) {
	return writeCSV([]string{"stage", "participant_id", "question_id", "kind", "choice", "confidence", "score", "text", "checked"}, len(rows), func(i int) []string {
		r := rows[i]
		return []string{r.Stage, r.ParticipantID, r.QuestionID, r.Kind, r.Choice, r.Confidence, r.Score, r.Text, r.Checked}
	})
}

func writeCSV(header []string, n int, row func(i int) []string) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write(header)
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportWideCSVStrings renders a wide-format CSV with participant-per-row and one column
// per header. inputs is a map[participantID]map[header]value.
func ExportWideCSVStrings(inputs map[string]map[string]string) ([]byte, error) {
	colSet := map[string]struct{}{}
	for _, m := range inputs {
		for col := range m {
			colSet[col] = struct{}{}
		}
	}
	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	pids := make([]string, 0, len(inputs))
	for pid := range inputs {
		pids = append(pids, pid)
	}
	sort.Strings(pids)

	return writeCSV(append([]string{"participant_id"}, cols...), len(pids), func(i int) []string {
		row := make([]string, 0, 1+len(cols))
		row = append(row, pids[i])
		for _, c := range cols {
			row = append(row, inputs[pids[i]][c])
		}
		return row
	})
}

func itoa(i int) string { return strconv.Itoa(i) }
