package models

// State is the application connection state tracked by the controller.
// It only moves forward, except that deauthentication returns it to
// StateCredentialsRequired.
type State int

const (
	StateAppIDNotSet State = iota
	StateCredentialsRequired
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAppIDNotSet:
		return "app_id_not_set"
	case StateCredentialsRequired:
		return "credentials_required"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}
