package access_resolution

// Flatten a role's rules into resource -> verbs. API groups are read but not used to tell
// resources apart, so "deployments" under apps and extensions end up in a single entry.
func ExtractPermissions(role Role) PermissionSet {
	permissions := PermissionSet{}

	for _, rule := range role.Rules {
		for _, resource := range rule.Resources {
			verbs, ok := permissions[resource]
			if !ok {
				verbs = []string{}
			}
			for _, verb := range rule.Verbs {
				if !containsString(verbs, verb) {
					verbs = append(verbs, verb)
				}
			}
			permissions[resource] = verbs
		}
	}

	return permissions
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
