package materials

// validTransitions enumerates every allowed MaterialStatus transition.
// Grounded on the authoritative 4-state table in
// sqlite_repository.rs::update_material_status, which (unlike the older
// in-memory repository.rs) includes the Error -> Discovered retry path.
var validTransitions = map[MaterialStatus]map[MaterialStatus]bool{
	StatusDiscovered: {StatusCut: true, StatusError: true},
	StatusCut:        {StatusSwatched: true, StatusError: true},
	StatusSwatched:   {StatusError: true},
	StatusError:      {StatusDiscovered: true},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to MaterialStatus) bool {
	return validTransitions[from][to]
}

// ValidateTransition returns an *InvalidTransitionError if the transition
// is not allowed, or nil if it is.
func ValidateTransition(from, to MaterialStatus) error {
	if !CanTransition(from, to) {
		return NewInvalidTransitionError(from, to)
	}
	return nil
}
