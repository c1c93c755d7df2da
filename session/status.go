package session

// Status is the state of the authentication state machine.
type Status int

const (
	Uninitialized Status = iota
	SignedOut
	SigningIn
	SignedIn
	SigningOut
)

var statusNames = map[Status]string{
	Uninitialized: "uninitialized",
	SignedOut:     "signed_out",
	SigningIn:     "signing_in",
	SignedIn:      "signed_in",
	SigningOut:    "signing_out",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Transient reports whether an operation is in flight.
func (s Status) Transient() bool {
	return s == SigningIn || s == SigningOut
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
