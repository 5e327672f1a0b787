package api

import "net/http"

// requireAPIKey guards the documentation endpoints. The key is looked up as
// a query parameter, a header and a cookie, in that order; a mismatch is a
// 403. With no key configured the endpoints stay open.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		name := s.cfg.APIKeyName

		if r.URL.Query().Get(name) == s.cfg.APIKey {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get(name) == s.cfg.APIKey {
			next.ServeHTTP(w, r)
			return
		}
		if cookie, err := r.Cookie(name); err == nil && cookie.Value == s.cfg.APIKey {
			next.ServeHTTP(w, r)
			return
		}

		writeError(w, http.StatusForbidden, "Invalid access token")
	})
}
