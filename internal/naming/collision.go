package naming

import (
	"log/slog"
	"strconv"
)

// CollisionResolver hands out unique identifiers within named scopes. A name
// that is already taken gets the lowest free numeric suffix, starting at 2.
type CollisionResolver struct {
	scopes map[string]map[string]string // scope -> identifier -> owner
	logger *slog.Logger
}

// NewCollisionResolver returns an empty resolver.
func NewCollisionResolver(logger *slog.Logger) *CollisionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollisionResolver{scopes: make(map[string]map[string]string), logger: logger}
}

// Register claims name in scope on behalf of owner and returns the
// identifier owner should use.
func (c *CollisionResolver) Register(scope, name, owner string) string {
	taken := c.scopes[scope]
	if taken == nil {
		taken = make(map[string]string)
		c.scopes[scope] = taken
	}
	previous, clash := taken[name]
	if !clash {
		taken[name] = owner
		return name
	}

	candidate := name
	for i := 2; ; i++ {
		candidate = name + strconv.Itoa(i)
		if _, ok := taken[candidate]; !ok {
			break
		}
	}
	taken[candidate] = owner
	c.logger.Warn("identifier already taken, renamed",
		slog.String("scope", scope),
		slog.String("name", name),
		slog.String("owner", previous),
		slog.String("renamed_to", candidate),
		slog.String("renamed_owner", owner),
	)
	return candidate
}

// Owner reports who claimed name in scope.
func (c *CollisionResolver) Owner(scope, name string) (string, bool) {
	owner, ok := c.scopes[scope][name]
	return owner, ok
}
