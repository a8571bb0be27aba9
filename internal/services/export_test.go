package services

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/deliblab/deliblab/internal/experiment"
)

func readCSV(b []byte) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(string(b)))
	return r.ReadAll()
}

// exportFixture returns an experiment where a and b answered the ranking survey,
// exchanged one chat message and voted for each other.
func exportFixture(t *testing.T) *experiment.Experiment {
	t.Helper()
	exp := newLabExperiment(t, "e1", labTemplate(), "a", "b")
	conf, score := 0.75, 7
	for _, uid := range []string{"a", "b"} {
		survey, err := experiment.ConfigAs[experiment.SurveyConfig](exp.Participants[uid].StageMap["rank"])
		if err != nil {
			t.Fatalf("survey: %v", err)
		}
		if err := survey.Question("r1").Apply(experiment.Answer{QuestionID: "r1", Choice: experiment.ChoiceItem1, Confidence: &conf}); err != nil {
			t.Fatalf("apply r1: %v", err)
		}
		if err := survey.Question("s1").Apply(experiment.Answer{QuestionID: "s1", Score: &score}); err != nil {
			t.Fatalf("apply s1: %v", err)
		}
	}
	exp.Participants["a"].Profile.Name = "Amy"
	msg := experiment.NewUserMessage("m1", exp.Participants["a"], "Compass first", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := broadcast(exp, "chat", msg); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	for voter, target := range map[string]string{"a": "b", "b": "a"} {
		vote, err := experiment.ConfigAs[experiment.VoteConfig](exp.Participants[voter].StageMap["vote"])
		if err != nil {
			t.Fatalf("vote: %v", err)
		}
		vote.Votes[target] = experiment.VotePositive
	}
	return exp
}

func TestExportChatCSV(t *testing.T) {
	b, err := ExportChatCSV(BuildChatRows(exportFixture(t)))
	if err != nil {
		t.Fatalf("export chat: %v", err)
	}
	recs, err := readCSV(b)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2 rows (one message, read once), got %d", len(recs))
	}
	if got := strings.Join(recs[0], ","); got != "stage,message_id,kind,from_user_id,from_name,item1,item2,text,timestamp" {
		t.Fatalf("bad header: %s", got)
	}
	if got := strings.Join(recs[1], ","); got != "chat,m1,user,a,Amy,,,Compass first,2024-01-01T00:00:00Z" {
		t.Fatalf("bad row: %s", got)
	}
}

func TestExportVotesCSV(t *testing.T) {
	b, err := ExportVotesCSV(BuildVoteRows(exportFixture(t)))
	if err != nil {
		t.Fatalf("export votes: %v", err)
	}
	recs, _ := readCSV(b)
	want := []string{"stage,voter_id,target_id,vote", "vote,a,b,positive", "vote,b,a,positive"}
	if len(recs) != len(want) {
		t.Fatalf("want %d rows, got %d", len(want), len(recs))
	}
	for i, w := range want {
		if got := strings.Join(recs[i], ","); got != w {
			t.Fatalf("row %d: want %s, got %s", i, w, got)
		}
	}
}

func TestExportAnswersLongCSV(t *testing.T) {
	b, err := ExportAnswersLongCSV(BuildAnswerRows(exportFixture(t)))
	if err != nil {
		t.Fatalf("export answers: %v", err)
	}
	recs, _ := readCSV(b)
	if len(recs) != 5 {
		t.Fatalf("want header + 4 rows, got %d", len(recs))
	}
	if got := strings.Join(recs[1], ","); got != "rank,a,r1,rating,compass,0.75,,," {
		t.Fatalf("bad rating row: %s", got)
	}
	if got := strings.Join(recs[2], ","); got != "rank,a,s1,scale,,,7,," {
		t.Fatalf("bad scale row: %s", got)
	}
}

func TestExportWideCSVStrings(t *testing.T) {
	data := map[string]map[string]string{
		"P2": {"rank.r1": "rope"},
		"P1": {"rank.r1": "compass", "rank.s1": "3"},
	}
	b, err := ExportWideCSVStrings(data)
	if err != nil {
		t.Fatalf("export wide: %v", err)
	}
	recs, _ := readCSV(b)
	if got := strings.Join(recs[0], ","); got != "participant_id,rank.r1,rank.s1" {
		t.Fatalf("bad header: %s", got)
	}
	if got := strings.Join(recs[2], ","); got != "P2,rope," {
		t.Fatalf("bad row: %s", got)
	}
}

func TestExportEscapesText(t *testing.T) {
	rows := []ChatRow{{Stage: "chat", MessageID: "m1", Kind: "user", Text: "a, \"quoted\"\nline"}}
	b, err := ExportChatCSV(rows)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	recs, err := readCSV(b)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if recs[1][7] != "a, \"quoted\"\nline" {
		t.Fatalf("text not round-tripped: %q", recs[1][7])
	}
}
