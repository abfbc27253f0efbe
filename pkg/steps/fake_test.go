package steps

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeParaBank serves the handful of ParaBank pages the API features use.
type fakeParaBank struct {
	mu       sync.Mutex
	next     int
	sessions map[string]bool
	users    map[string]string
}

func newFakeParaBank(t *testing.T) (*fakeParaBank, *httptest.Server) {
	t.Helper()
	f := &fakeParaBank{sessions: map[string]bool{}, users: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeParaBank) addUser(username, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[username] = password
}

func (f *fakeParaBank) user(username string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.users[username]
	return p, ok
}

func (f *fakeParaBank) validSession(r *http.Request, fromPath string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fromPath != "" {
		return f.sessions[fromPath]
	}
	c, err := r.Cookie(SessionCookie)
	return err == nil && f.sessions[c.Value]
}

func (f *fakeParaBank) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path, sid, _ := strings.Cut(r.URL.Path, ";jsessionid=")

	switch path {
	case EndpointHomepage:
		f.mu.Lock()
		f.next++
		id := fmt.Sprintf("%032X", f.next)
		f.sessions[id] = true
		f.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: id, Path: "/parabank", HttpOnly: true})
		page(w, http.StatusOK, "<h2>Customer Login</h2><a href=\"register.htm\">Register</a>")

	case EndpointRegister:
		if !f.validSession(r, sid) {
			page(w, http.StatusInternalServerError, "An internal error has occurred and has been logged.")
			return
		}
		if r.Method == http.MethodGet {
			page(w, http.StatusOK, "<h1>Signing up is easy!</h1>")
			return
		}
		if err := r.ParseForm(); err != nil {
			page(w, http.StatusBadRequest, err.Error())
			return
		}
		username := r.PostForm.Get(registrationUsernameField)
		switch {
		case username == "":
			page(w, http.StatusOK, "Username is required.")
		case r.PostForm.Get(registrationPasswordField) != r.PostForm.Get("repeatedPassword"):
			page(w, http.StatusOK, "Passwords did not match.")
		default:
			if _, exists := f.user(username); exists {
				page(w, http.StatusOK, "This username already exists.")
				return
			}
			f.addUser(username, r.PostForm.Get(registrationPasswordField))
			page(w, http.StatusOK, "Your account was created successfully. You are now logged in.")
		}

	case EndpointLogin:
		if err := r.ParseForm(); err != nil {
			page(w, http.StatusBadRequest, err.Error())
			return
		}
		pass, ok := f.user(r.PostForm.Get("username"))
		if !ok || pass != r.PostForm.Get("password") {
			page(w, http.StatusOK, `<p class="error">The username and password could not be verified.</p>`)
			return
		}
		http.Redirect(w, r, EndpointOverview, http.StatusFound)

	case EndpointOverview:
		page(w, http.StatusOK, "<h1>Accounts Overview</h1>")

	case EndpointLogout:
		http.Redirect(w, r, EndpointHomepage, http.StatusFound)

	default:
		http.NotFound(w, r)
	}
}

func page(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html;charset=ISO-8859-1")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<html><body>%s</body></html>", body)
}
