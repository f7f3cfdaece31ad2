package display

import "time"

// Action is the entry action of a state.
type Action int

const (
	ActionNone Action = iota
	ActionNormal
	ActionDim
	ActionLCDOff
	ActionStandby
	ActionSleep
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionNormal:
		return "normal"
	case ActionDim:
		return "dim"
	case ActionLCDOff:
		return "lcdoff"
	case ActionStandby:
		return "standby"
	case ActionSleep:
		return "sleep"
	}
	return "unknown"
}

// layer is one entry of a state's override stack.
type layer struct {
	action Action
	next   State
}

type row struct {
	timeout time.Duration
	// layers[0] is the base behavior; overrides stack on top of it.
	layers []layer
}

func (r *row) top() layer {
	return r.layers[len(r.layers)-1]
}

// table is the per-state behavior: timeout, timeout successor and entry
// action. Only the standby override writes to it after construction.
type table struct {
	rows [numStates]row
}

func newTable(cfg Config) *table {
	afterNormal := StateDim
	if !cfg.DimEnabled {
		afterNormal = StateLCDOff
	}
	t := &table{}
	t.rows[StateStart] = row{cfg.NormalTimeout, []layer{{ActionNormal, StateNormal}}}
	t.rows[StateNormal] = row{cfg.NormalTimeout, []layer{{ActionNormal, afterNormal}}}
	t.rows[StateDim] = row{cfg.DimTimeout, []layer{{ActionDim, StateLCDOff}}}
	t.rows[StateLCDOff] = row{cfg.LCDOffTimeout, []layer{{ActionLCDOff, StateSleep}}}
	t.rows[StateSleep] = row{0, []layer{{ActionSleep, StateSleep}}}
	return t
}

func (t *table) timeout(s State) time.Duration {
	if !s.Valid() {
		return 0
	}
	return t.rows[s].timeout
}

func (t *table) next(s State) State {
	if !s.Valid() {
		return StateNormal
	}
	return t.rows[s].top().next
}

func (t *table) action(s State) Action {
	if !s.Valid() {
		return ActionNone
	}
	return t.rows[s].top().action
}

func (t *table) push(s State, action Action, next State) {
	r := &t.rows[s]
	r.layers = append(r.layers, layer{action: action, next: next})
}

// pop removes the top override of s. The base layer is never removed; pop
// reports whether anything was.
func (t *table) pop(s State) bool {
	r := &t.rows[s]
	if len(r.layers) <= 1 {
		return false
	}
	r.layers = r.layers[:len(r.layers)-1]
	return true
}

func (t *table) overridden(s State) bool {
	return len(t.rows[s].layers) > 1
}
