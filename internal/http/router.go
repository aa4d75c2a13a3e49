package http

import (
	"net/http"
	"strings"
)

// RouterConfig wires handlers and middleware into the HTTP surface. The
// SessionGuard wraps every route except registration and login; Middleware
// wraps the whole router.
type RouterConfig struct {
	Auth         *AuthHandler
	Users        *UserHandler
	Studies      *StudyHandler
	Schedules    *ScheduleHandler
	Chat         *ChatHandler
	SessionGuard func(http.Handler) http.Handler
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	protect := func(h http.HandlerFunc) http.Handler {
		if cfg.SessionGuard != nil {
			return cfg.SessionGuard(h)
		}
		return h
	}

	if cfg.Auth != nil {
		mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.CreateSession(w, r)
		})
		mux.HandleFunc("/sessions/current", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, http.MethodDelete)
				return
			}
			cfg.Auth.DeleteCurrentSession(w, r)
		})
	}

	if cfg.Users != nil {
		mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Users.Create(w, r)
		})
		mux.Handle("/users/me", protect(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Users.Me(w, r)
			case http.MethodDelete:
				cfg.Users.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodDelete)
			}
		}))
	}

	if cfg.Schedules != nil {
		mux.Handle("/submissions", protect(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Schedules.CreateSubmission(w, r)
		}))
	}

	if cfg.Studies != nil {
		mux.Handle("/studies", protect(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Studies.List(w, r)
			case http.MethodPost:
				cfg.Studies.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		}))
		mux.Handle("/studies/", protect(func(w http.ResponseWriter, r *http.Request) {
			routeStudySubtree(cfg, w, r)
		}))
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

// routeStudySubtree dispatches everything under /studies/{id}. The study id,
// and the schedule id where present, travel to handlers via the request
// context.
func routeStudySubtree(cfg RouterConfig, w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/studies/")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		http.NotFound(w, r)
		return
	}

	studyID := segments[0]
	r = r.WithContext(ContextWithStudyID(r.Context(), studyID))
	segments = segments[1:]

	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			cfg.Studies.Get(w, r)
		case http.MethodPut:
			cfg.Studies.Update(w, r)
		case http.MethodDelete:
			cfg.Studies.Delete(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
		return
	}

	switch segments[0] {
	case "pin":
		routeStudyAction(w, r, segments, cfg.Studies.Pin)
	case "join":
		routeStudyAction(w, r, segments, cfg.Studies.Join)
	case "leave":
		routeStudyAction(w, r, segments, cfg.Studies.Leave)
	case "transfer":
		routeStudyAction(w, r, segments, cfg.Studies.Transfer)
	case "invite-code":
		routeStudyAction(w, r, segments, cfg.Studies.InviteCode)
	case "invitations":
		routeStudyAction(w, r, segments, cfg.Studies.Invite)
	case "members":
		if len(segments) != 2 || segments[1] == "" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, http.MethodDelete)
			return
		}
		cfg.Studies.Kick(w, r, segments[1])
	case "schedules":
		routeSchedules(cfg, w, r, segments[1:])
	case "chat":
		routeChat(cfg, w, r, segments[1:])
	default:
		http.NotFound(w, r)
	}
}

func routeStudyAction(w http.ResponseWriter, r *http.Request, segments []string, action func(http.ResponseWriter, *http.Request)) {
	if len(segments) != 1 {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	action(w, r)
}

func routeSchedules(cfg RouterConfig, w http.ResponseWriter, r *http.Request, segments []string) {
	if cfg.Schedules == nil {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(segments) == 0:
		switch r.Method {
		case http.MethodGet:
			cfg.Schedules.List(w, r)
		case http.MethodPost:
			cfg.Schedules.Create(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(segments) == 1 && segments[0] == "today":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		cfg.Schedules.Today(w, r)
	case len(segments) == 1:
		r = r.WithContext(ContextWithScheduleID(r.Context(), segments[0]))
		switch r.Method {
		case http.MethodGet:
			cfg.Schedules.Get(w, r)
		case http.MethodPut:
			cfg.Schedules.Update(w, r)
		case http.MethodDelete:
			cfg.Schedules.Delete(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case len(segments) == 3 && segments[1] == "problems":
		r = r.WithContext(ContextWithScheduleID(r.Context(), segments[0]))
		if r.Method != http.MethodPut {
			methodNotAllowed(w, http.MethodPut)
			return
		}
		cfg.Schedules.MarkProblem(w, r, segments[2])
	default:
		http.NotFound(w, r)
	}
}

func routeChat(cfg RouterConfig, w http.ResponseWriter, r *http.Request, segments []string) {
	if cfg.Chat == nil {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(segments) == 0:
		switch r.Method {
		case http.MethodGet:
			cfg.Chat.List(w, r)
		case http.MethodPost:
			cfg.Chat.Post(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(segments) == 1 && segments[0] == "latest":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		cfg.Chat.Latest(w, r)
	default:
		http.NotFound(w, r)
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
