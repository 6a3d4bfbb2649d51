// Package roster tracks which participant holds which role. Role identity
// is sticky: an exclusive role stays taken after its holder disconnects
// and can only be re-entered by reclaiming the same role, so a page
// reload never frees a seat mid-mission.
package roster

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"callsign/internal/logging"
	"callsign/internal/script"
)

var (
	ErrUnknownRole = errors.New("unknown role")
	ErrRoleTaken   = errors.New("role already taken")
)

// Status describes one exclusive role for availability broadcasts.
type Status struct {
	Taken bool   `json:"taken"`
	Live  bool   `json:"live"`
	Conn  string `json:"-"`
}

// Participant is one connected, role-holding connection.
type Participant struct {
	Conn string `json:"conn"`
	Role string `json:"role"`
}

type assignment struct {
	taken bool
	// conn is the live connection holding the role, empty after its
	// holder disconnects.
	conn string
}

// Registry is the role/session registry. Safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	roles     script.Roles
	exclusive map[string]*assignment
	observers map[string]struct{}
	byConn    map[string]string
	logger    *slog.Logger
}

// New builds a Registry for the given role declaration.
func New(roles script.Roles, logger *slog.Logger) *Registry {
	r := &Registry{
		roles:     roles,
		exclusive: make(map[string]*assignment, len(roles.Exclusive)),
		observers: make(map[string]struct{}),
		byConn:    make(map[string]string),
		logger:    logging.NewComponentLogger(logger, "roster"),
	}
	for _, role := range roles.Exclusive {
		r.exclusive[role] = &assignment{}
	}
	return r
}

// Claim grants role to conn. Exclusive roles are granted only while
// unclaimed; the observer role is always granted.
func (r *Registry) Claim(role, conn string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if role == r.roles.Observer {
		r.observers[conn] = struct{}{}
		r.byConn[conn] = role
		return nil
	}
	a, ok := r.exclusive[role]
	if !ok {
		return ErrUnknownRole
	}
	if a.taken {
		// Re-claiming a role the connection already holds is a no-op.
		if a.conn == conn {
			return nil
		}
		return ErrRoleTaken
	}
	a.taken = true
	a.conn = conn
	r.byConn[conn] = role
	r.logger.Info("role claimed",
		logging.String(logging.FieldRole, role),
		logging.String(logging.FieldConnID, conn))
	return nil
}

// Reclaim re-associates role with a new connection after a disconnect or
// page transition. It is idempotent and always marks the role taken.
func (r *Registry) Reclaim(role, conn string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if role == r.roles.Observer {
		r.observers[conn] = struct{}{}
		r.byConn[conn] = role
		return nil
	}
	a, ok := r.exclusive[role]
	if !ok {
		return ErrUnknownRole
	}
	if a.conn != "" && a.conn != conn {
		delete(r.byConn, a.conn)
	}
	a.taken = true
	a.conn = conn
	r.byConn[conn] = role
	r.logger.Info("role reclaimed",
		logging.String(logging.FieldRole, role),
		logging.String(logging.FieldConnID, conn))
	return nil
}

// Release drops conn from the registry. Observer membership is removed;
// an exclusive role stays taken with no live connection.
func (r *Registry) Release(conn string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.byConn[conn]
	if !ok {
		return
	}
	delete(r.byConn, conn)
	if role == r.roles.Observer {
		delete(r.observers, conn)
		return
	}
	if a, ok := r.exclusive[role]; ok && a.conn == conn {
		a.conn = ""
	}
}

// Reset clears every assignment. Only a full mission reset shrinks the
// taken set.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.exclusive {
		a.taken = false
		a.conn = ""
	}
	r.observers = make(map[string]struct{})
	r.byConn = make(map[string]string)
}

// RoleOf returns the role held by conn.
func (r *Registry) RoleOf(conn string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.byConn[conn]
	return role, ok
}

// LiveConn returns the live connection holding an exclusive role, if any.
func (r *Registry) LiveConn(role string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.exclusive[role]
	if !ok || a.conn == "" {
		return "", false
	}
	return a.conn, true
}

// Availability reports each exclusive role's status for broadcast.
func (r *Registry) Availability() map[string]Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Status, len(r.exclusive))
	for role, a := range r.exclusive {
		out[role] = Status{Taken: a.taken, Live: a.conn != "", Conn: a.conn}
	}
	return out
}

// Participants lists currently connected role holders, observers included,
// in stable order.
func (r *Registry) Participants() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Participant, 0, len(r.byConn))
	for conn, role := range r.byConn {
		out = append(out, Participant{Conn: conn, Role: role})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Conn < out[j].Conn
	})
	return out
}
