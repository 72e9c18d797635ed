package roster

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	errDataMissing      = errors.New("roster: data array missing or empty")
	errInternalsMissing = errors.New("roster: data[0].internals missing or not a mapping")
)

type User struct {
	Username  string   `yaml:"username" json:"username"`
	Groups    []string `yaml:"groups" json:"groups"`
	FirstName string   `yaml:"first_name" json:"first_name"`
	LastName  string   `yaml:"last_name" json:"last_name"`
	Source    string   `yaml:"source" json:"source"`
}

// Roster is the read-only set of known users, in input order
type Roster struct {
	users  []User
	byName map[string]int
	groups map[string]map[string]struct{}
}

type document struct {
	Data []struct {
		Internals yaml.Node `yaml:"internals"`
	} `yaml:"data"`
}

type jsonDocument struct {
	Data []struct {
		Internals json.RawMessage `json:"internals"`
	} `json:"data"`
}

type entry struct {
	id   string
	user User
}

// LoadFromFile parses a roster document (JSON or YAML) with users under data[0].internals
func LoadFromFile(path string) (*Roster, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	return Parse(b)
}

// Parse decodes JSON documents with encoding/json and anything else as YAML
func Parse(b []byte) (*Roster, error) {
	var (
		entries []entry
		err     error
	)
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 && trimmed[0] == '{' {
		entries, err = parseJSON(trimmed)
	} else {
		entries, err = parseYAML(b)
	}
	if err != nil {
		return nil, err
	}

	r := &Roster{
		byName: map[string]int{},
		groups: map[string]map[string]struct{}{},
	}
	for _, e := range entries {
		if strings.TrimSpace(e.user.Username) == "" {
			return nil, fmt.Errorf("roster: user %q has no username", e.id)
		}
		if e.user.Groups == nil {
			e.user.Groups = []string{}
		}
		r.add(e.user)
	}

	return r, nil
}

func parseYAML(b []byte) ([]entry, error) {
	var d document
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	if len(d.Data) == 0 {
		return nil, errDataMissing
	}

	internals := d.Data[0].Internals
	if internals.Kind != yaml.MappingNode {
		return nil, errInternalsMissing
	}

	// mapping node content alternates key, value
	entries := make([]entry, 0, len(internals.Content)/2)
	for i := 0; i+1 < len(internals.Content); i += 2 {
		id := internals.Content[i].Value
		var u User
		if err := internals.Content[i+1].Decode(&u); err != nil {
			return nil, fmt.Errorf("roster: user %q: %w", id, err)
		}
		entries = append(entries, entry{id: id, user: u})
	}
	return entries, nil
}

// parseJSON walks the internals object token by token to keep key order
func parseJSON(b []byte) ([]entry, error) {
	var d jsonDocument
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	if len(d.Data) == 0 {
		return nil, errDataMissing
	}

	dec := json.NewDecoder(bytes.NewReader(d.Data[0].Internals))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, errInternalsMissing
	}

	var entries []entry
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("roster: %w", err)
		}
		id, _ := key.(string)
		var u User
		if err := dec.Decode(&u); err != nil {
			return nil, fmt.Errorf("roster: user %q: %w", id, err)
		}
		entries = append(entries, entry{id: id, user: u})
	}
	return entries, nil
}

// later definitions of a username replace earlier ones but keep their position
func (r *Roster) add(u User) {
	if idx, ok := r.byName[u.Username]; ok {
		r.users[idx] = u
	} else {
		r.byName[u.Username] = len(r.users)
		r.users = append(r.users, u)
	}

	set := make(map[string]struct{}, len(u.Groups))
	for _, g := range u.Groups {
		set[g] = struct{}{}
	}
	r.groups[u.Username] = set
}

func (r *Roster) Users() []User {
	return append([]User(nil), r.users...)
}

func (r *Roster) Usernames() []string {
	names := make([]string, 0, len(r.users))
	for _, u := range r.users {
		names = append(names, u.Username)
	}
	return names
}

func (r *Roster) Len() int {
	return len(r.users)
}

func (r *Roster) Lookup(username string) (User, bool) {
	idx, ok := r.byName[username]
	if !ok {
		return User{}, false
	}
	return r.users[idx], true
}

// GroupsOf returns the group set of a user, empty for unknown users
func (r *Roster) GroupsOf(username string) map[string]struct{} {
	return r.groups[username]
}
