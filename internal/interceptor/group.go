package interceptor

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Group is a recognized caller group from the cognito:groups claim.
type Group int

const (
	GroupNone Group = iota
	GroupSRE
	GroupApprovers
)

func (g Group) String() string {
	switch g {
	case GroupSRE:
		return "sre"
	case GroupApprovers:
		return "approvers"
	default:
		return "none"
	}
}

// ResolveGroup picks the group that governs a caller. sre takes
// precedence over approvers.
func ResolveGroup(groups []string) Group {
	var sre, approvers bool
	for _, g := range groups {
		switch g {
		case "sre":
			sre = true
		case "approvers":
			approvers = true
		}
	}
	switch {
	case sre:
		return GroupSRE
	case approvers:
		return GroupApprovers
	default:
		return GroupNone
	}
}

// ActionType is the arguments.action_type discriminator of a tools/call.
type ActionType int

const (
	ActionUnspecified ActionType = iota
	ActionOnlyPlan
	ActionOther
)

const actionOnlyPlan = "only_plan"

// ParseActionType reads arguments.action_type.
func ParseActionType(args json.RawMessage) ActionType {
	v := gjson.GetBytes(args, "action_type")
	switch {
	case !v.Exists() || v.String() == "":
		return ActionUnspecified
	case v.Type == gjson.String && v.Str == actionOnlyPlan:
		return ActionOnlyPlan
	default:
		return ActionOther
	}
}

// Decision is the outcome of authorizing one tools/call.
type Decision struct {
	Allow  bool
	Reason string
}

// AuthorizeCall decides whether a caller in group may run a tool call
// with the given action type.
func AuthorizeCall(group Group, action ActionType) Decision {
	switch group {
	case GroupSRE:
		if action == ActionOnlyPlan {
			return Decision{Allow: true, Reason: "sre: only_plan"}
		}
		return Decision{Reason: "Members of the sre group may only call tools with action_type 'only_plan'"}
	case GroupApprovers:
		return Decision{Allow: true, Reason: "approvers"}
	case GroupNone:
		return Decision{Reason: "User does not belong to authorized groups (sre, approvers)"}
	}
	return Decision{Reason: "unknown group"}
}
