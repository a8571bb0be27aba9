package api

import (
	"net/http"

	"github.com/deliblab/deliblab/internal/experiment"
	"github.com/deliblab/deliblab/internal/services"
)

type participantView struct {
	Progress *experiment.UserProgress `json:"progress"`
	Viewing  string                   `json:"viewing"`
	Stage    *experiment.Stage        `json:"stage,omitempty"`
}

func (rt *Router) controller(r *http.Request) (*services.ParticipantController, session) {
	s, _ := sessionFrom(r.Context())
	return services.NewParticipantController(rt.store, s.Experiment, s.UserID), s
}

// viewOf resolves the stage shown to p: the requested one, else the working-on
// stage, else the last completed stage once finished.
func viewOf(p *experiment.UserProgress, requested string) participantView {
	v := participantView{Progress: p, Viewing: requested}
	if v.Viewing == "" {
		v.Viewing = p.WorkingOn
	}
	if v.Viewing == "" && len(p.Completed) > 0 {
		v.Viewing = p.Completed[len(p.Completed)-1]
	}
	if st, err := p.Stage(v.Viewing); err == nil {
		v.Stage = st
	}
	return v
}

func (rt *Router) handleJoin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AccessCode string `json:"accessCode"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.experiments.Join(r.Context(), in.AccessCode)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) handleProgress(w http.ResponseWriter, r *http.Request) {
	c, s := rt.controller(r)
	p, err := c.Progress(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p, s.Viewing))
}

func (rt *Router) handleNext(w http.ResponseWriter, r *http.Request) {
	c, s := rt.controller(r)
	next, err := c.NextStep(r.Context(), s.Viewing)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	p, err := c.Progress(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p, next))
}

func (rt *Router) handleProfile(w http.ResponseWriter, r *http.Request) {
	var in experiment.Profile
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, _ := rt.controller(r)
	if err := c.SetProfile(r.Context(), in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (rt *Router) handleTOS(w http.ResponseWriter, r *http.Request) {
	s, _ := sessionFrom(r.Context())
	res, err := rt.consent.AcceptTOS(r.Context(), s.Experiment, s.UserID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) handleMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, _ := rt.controller(r)
	msg, err := c.SendMessage(r.Context(), in.Text)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (rt *Router) handleVotes(w http.ResponseWriter, r *http.Request) {
	var in experiment.Votes
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, _ := rt.controller(r)
	if err := c.CastVotes(r.Context(), in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (rt *Router) handleSurvey(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Answers []experiment.Answer `json:"answers"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, _ := rt.controller(r)
	if err := c.AnswerSurvey(r.Context(), in.Answers); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Ready bool `json:"ready"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, _ := rt.controller(r)
	if err := c.ToggleReadyToEndChat(r.Context(), in.Ready); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
