package access_resolution

// Check if a user is bound by any of the subjects, either directly or through one of its groups.
// Service accounts are never matched.
func MatchesSubjects(username string, subjects []Subject, groupsOf GroupsOf) bool {
	if len(subjects) == 0 {
		return false
	}

	var groups map[string]struct{}
	for _, subject := range subjects {
		switch subject.Kind {
		case SubjectUser:
			if subject.Name == username {
				return true
			}
		case SubjectGroup:
			if groupsOf == nil {
				continue
			}
			if groups == nil {
				groups = groupsOf(username)
			}
			if _, ok := groups[subject.Name]; ok {
				return true
			}
		}
	}

	return false
}
