package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/deliblab/deliblab/internal/experiment"
	"github.com/deliblab/deliblab/internal/services"
)

// AccessCodeHeader carries the participant's access code on every participant request.
// Event streams may pass it as ?code= instead.
const AccessCodeHeader = "X-Access-Code"

type sessionKey struct{}

// session is the participant binding resolved by the guard.
type session struct {
	Experiment string
	UserID     string
	Viewing    string
}

func sessionFrom(ctx context.Context) (session, bool) {
	s, ok := ctx.Value(sessionKey{}).(session)
	return s, ok
}

// guard resolves {exp} and {user}, checks the access code and, when ?stage= is given,
// that the stage exists and has been reached. Handlers behind it can rely on the binding.
func (rt *Router) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, uid := r.PathValue("exp"), r.PathValue("user")
		exp, err := rt.store.GetExperiment(r.Context(), name)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		if exp == nil {
			rt.writeError(w, r, services.NewNotFoundError("experiment not found"))
			return
		}
		p, ok := exp.Participant(uid)
		if !ok {
			rt.writeError(w, r, services.NewNotFoundError("participant not found"))
			return
		}
		code := r.Header.Get(AccessCodeHeader)
		if code == "" {
			// EventSource cannot set headers.
			code = r.URL.Query().Get("code")
		}
		if subtle.ConstantTimeCompare([]byte(code), []byte(p.AccessCode)) != 1 {
			rt.writeError(w, r, services.NewUnauthorizedError("access code does not match"))
			return
		}
		viewing := r.URL.Query().Get("stage")
		if viewing != "" {
			if _, err := p.Stage(viewing); err != nil {
				rt.writeError(w, r, err)
				return
			}
			if !p.Reached(viewing) {
				rt.writeError(w, r, experiment.ErrStageNotReached)
				return
			}
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, session{Experiment: name, UserID: uid, Viewing: viewing})
		next(w, r.WithContext(ctx))
	}
}
