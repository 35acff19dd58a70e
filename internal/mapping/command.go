package mapping

import (
	"fmt"
	"strings"

	"schemamap/internal/model"
	"schemamap/internal/sqltype"
)

// matchesEntity reports whether cmd belongs to the table entity e. A command
// matches when its name carries the custom procedure pattern for e, or when
// it mentions e and returns rows shaped exactly like e.
func (mc *Context) matchesEntity(cmd, e *model.Entity) bool {
	if cmd == nil || e == nil || !cmd.IsCommand() {
		return false
	}
	name := strings.ToLower(cmd.KeyName)
	if format := mc.Config.CustomProcedureNameFormat; format != "" {
		if strings.Contains(name, strings.ToLower(fmt.Sprintf(format, e.KeyName))) {
			return true
		}
	}
	return strings.Contains(name, strings.ToLower(e.KeyName)) && stronglyTyped(cmd, e)
}

// stronglyTyped reports whether the result columns of cmd line up with the
// properties of e by column name and base type.
func stronglyTyped(cmd, e *model.Entity) bool {
	results := cmd.Properties()
	props := e.Properties()
	if len(results) == 0 || len(results) != len(props) {
		return false
	}
	for _, p := range props {
		r := cmd.Property(p.KeyName)
		if r == nil || sqltype.BaseSystemType(r.SystemType) != sqltype.BaseSystemType(p.SystemType) {
			return false
		}
	}
	return true
}
