package experiment

import (
	"fmt"
	"sort"
)

// Item is an object participants rank against each other in surveys and chats.
type Item struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	ImageURL string `json:"imageUrl,omitempty" yaml:"image_url,omitempty"`
}

// Items is the catalogue of rankable items, keyed by id.
var Items = map[string]Item{
	"compass":     {ID: "compass", Name: "Compass"},
	"blanket":     {ID: "blanket", Name: "Blanket"},
	"lighter":     {ID: "lighter", Name: "Lighter"},
	"mirror":      {ID: "mirror", Name: "Shaving mirror"},
	"water":       {ID: "water", Name: "Five gallons of water"},
	"chocolate":   {ID: "chocolate", Name: "Box of chocolate bars"},
	"rope":        {ID: "rope", Name: "Fifteen feet of nylon rope"},
	"sea-chart":   {ID: "sea-chart", Name: "Maps of the Pacific Ocean"},
	"fishing-kit": {ID: "fishing-kit", Name: "Fishing kit"},
	"radio":       {ID: "radio", Name: "Transistor radio"},
}

// ItemIDs returns the catalogue ids in sorted order.
func ItemIDs() []string {
	ids := make([]string, 0, len(Items))
	for id := range Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ItemPair names two catalogue items to compare.
type ItemPair struct {
	Item1 string `json:"item1" yaml:"item1"`
	Item2 string `json:"item2" yaml:"item2"`
}

func (p ItemPair) Validate() error {
	if _, ok := Items[p.Item1]; !ok {
		return fmt.Errorf("%w: unknown item %q", ErrInvalidAnswer, p.Item1)
	}
	if _, ok := Items[p.Item2]; !ok {
		return fmt.Errorf("%w: unknown item %q", ErrInvalidAnswer, p.Item2)
	}
	if p.Item1 == p.Item2 {
		return fmt.Errorf("%w: item pair compares %q with itself", ErrInvalidAnswer, p.Item1)
	}
	return nil
}

// ItemChoice is which side of a pair was picked.
type ItemChoice string

const (
	ChoiceNone  ItemChoice = ""
	ChoiceItem1 ItemChoice = "item1"
	ChoiceItem2 ItemChoice = "item2"
)

// ItemRating is a choice between the two items of a pair with a confidence in [0,1].
type ItemRating struct {
	ItemPair
	Choice     ItemChoice `json:"choice"`
	Confidence *float64   `json:"confidence,omitempty"`
}

// QuestionKind tags a survey question.
type QuestionKind string

const (
	QuestionRating QuestionKind = "rating"
	QuestionScale  QuestionKind = "scale"
	QuestionText   QuestionKind = "text"
	QuestionCheck  QuestionKind = "check"
)

// Question is a survey question; only the fields matching Kind are meaningful.
type Question struct {
	ID   string       `json:"id"`
	Kind QuestionKind `json:"kind"`
	Text string       `json:"questionText"`

	Rating *ItemRating `json:"rating,omitempty"`

	UpperBound int    `json:"upperBound,omitempty"`
	LowerLabel string `json:"lowerLabel,omitempty"`
	UpperLabel string `json:"upperLabel,omitempty"`
	Score      *int   `json:"score,omitempty"`

	Answer string `json:"answerText,omitempty"`

	Checked bool `json:"checkMark,omitempty"`
}

func (q *Question) Clone() *Question {
	if q == nil {
		return nil
	}
	out := *q
	if q.Rating != nil {
		r := *q.Rating
		if q.Rating.Confidence != nil {
			c := *q.Rating.Confidence
			r.Confidence = &c
		}
		out.Rating = &r
	}
	if q.Score != nil {
		s := *q.Score
		out.Score = &s
	}
	return &out
}

// Answer is a participant's response to one question.
type Answer struct {
	QuestionID string     `json:"questionId"`
	Choice     ItemChoice `json:"choice,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	Score      *int       `json:"score,omitempty"`
	Text       *string    `json:"text,omitempty"`
	Checked    *bool      `json:"checked,omitempty"`
}

// Apply writes a onto q after checking it fits the question kind.
func (q *Question) Apply(a Answer) error {
	switch q.Kind {
	case QuestionRating:
		if q.Rating == nil {
			return fmt.Errorf("%w: rating question %q has no item pair", ErrInvalidAnswer, q.ID)
		}
		if a.Choice != ChoiceItem1 && a.Choice != ChoiceItem2 {
			return fmt.Errorf("%w: choice %q", ErrInvalidAnswer, a.Choice)
		}
		if a.Confidence == nil || *a.Confidence < 0 || *a.Confidence > 1 {
			return fmt.Errorf("%w: confidence must be within [0,1]", ErrInvalidAnswer)
		}
		c := *a.Confidence
		q.Rating.Choice = a.Choice
		q.Rating.Confidence = &c
	case QuestionScale:
		if a.Score == nil || *a.Score < 0 || *a.Score > q.UpperBound {
			return fmt.Errorf("%w: score must be within [0,%d]", ErrInvalidAnswer, q.UpperBound)
		}
		s := *a.Score
		q.Score = &s
	case QuestionText:
		if a.Text == nil {
			return fmt.Errorf("%w: text answer required", ErrInvalidAnswer)
		}
		q.Answer = *a.Text
	case QuestionCheck:
		if a.Checked == nil {
			return fmt.Errorf("%w: checked value required", ErrInvalidAnswer)
		}
		q.Checked = *a.Checked
	default:
		return fmt.Errorf("%w: unknown question kind %q", ErrInvalidAnswer, q.Kind)
	}
	return nil
}
