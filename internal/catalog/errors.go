package catalog

// ErrNotFound is returned when a category, layer or base layer key is unknown.
type ErrNotFound struct {
	Type string
	Key  string
}

func (e *ErrNotFound) Error() string {
	return e.Type + " with key " + e.Key + " does not exist"
}

// ErrInvalid is returned when a catalog fails validation.
type ErrInvalid struct {
	Key    string
	Reason string
}

func (e *ErrInvalid) Error() string {
	if e.Key == "" {
		return "invalid catalog: " + e.Reason
	}
	return "invalid catalog entry " + e.Key + ": " + e.Reason
}
