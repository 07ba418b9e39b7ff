package session

// GenericLoginError is shown when the upstream failure carries no message.
const GenericLoginError = "Invalid email or password"

// Event is a session state transition trigger.
type Event interface {
	event()
}

// RestoreStarted begins a silent restore from stored credentials.
type RestoreStarted struct{}

// RestoreSucceeded completes a restore with the authoritative profile.
type RestoreSucceeded struct {
	Token string
	User  Profile
}

// RestoreFailed resolves a restore without credentials. Restores fail
// silently: no error is carried into the session.
type RestoreFailed struct{}

// LoginStarted begins a credential exchange.
type LoginStarted struct{}

// LoginSucceeded completes a login.
type LoginSucceeded struct {
	Token string
	User  Profile
}

// LoginFailed resolves a login with a user-facing message.
type LoginFailed struct {
	Message string
}

// LoggedOut clears the session.
type LoggedOut struct{}

// UserUpdated merges a partial profile into the current user.
type UserUpdated struct {
	Patch ProfilePatch
}

func (RestoreStarted) event()   {}
func (RestoreSucceeded) event() {}
func (RestoreFailed) event()    {}
func (LoginStarted) event()     {}
func (LoginSucceeded) event()   {}
func (LoginFailed) event()      {}
func (LoggedOut) event()        {}
func (UserUpdated) event()      {}

// Apply computes the next session state. It is a pure function: all I/O
// (token store, identity API, audit) happens in the Controller, which
// feeds the outcomes back in as events.
func Apply(s Session, ev Event) Session {
	switch ev := ev.(type) {
	case RestoreStarted:
		return Session{Status: StatusInitializing}

	case RestoreSucceeded:
		// A restore outcome only matters for the session generation that
		// started it. Once a login or logout has settled the session, the
		// later mutation wins and the stale outcome is discarded.
		if s.Status != StatusInitializing {
			return s
		}
		user := ev.User
		return Session{Status: StatusAuthenticated, CurrentUser: &user, Token: ev.Token}

	case RestoreFailed:
		if s.Status != StatusInitializing {
			return s
		}
		// Silent: the user simply sees the login page.
		return Session{Status: StatusUnauthenticated}

	case LoginStarted:
		if s.Status == StatusAuthenticating {
			return s
		}
		return Session{Status: StatusAuthenticating}

	case LoginSucceeded:
		user := ev.User
		return Session{Status: StatusAuthenticated, CurrentUser: &user, Token: ev.Token}

	case LoginFailed:
		msg := ev.Message
		if msg == "" {
			msg = GenericLoginError
		}
		return Session{Status: StatusUnauthenticated, LastError: msg}

	case LoggedOut:
		return Session{Status: StatusUnauthenticated}

	case UserUpdated:
		if s.Status != StatusAuthenticated || s.CurrentUser == nil {
			return s
		}
		merged := mergeProfile(*s.CurrentUser, ev.Patch)
		next := s
		next.CurrentUser = &merged
		return next
	}
	return s
}

// mergeProfile copies mutable fields only. Role and ID never change
// mid-session, whatever the patch says.
func mergeProfile(user Profile, patch ProfilePatch) Profile {
	if patch.FullName != nil {
		user.FullName = *patch.FullName
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.AssignedShops != nil {
		user.AssignedShops = patch.AssignedShops
	}
	if patch.Permissions != nil {
		user.Permissions = patch.Permissions
	}
	return user
}
