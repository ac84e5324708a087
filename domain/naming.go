package domain

// GroupChannelName is the canonical name of the all-participants channel.
const GroupChannelName = "group"

// dmDelimiter joins the two participant identifiers of a DM channel name.
// It is excluded from valid identifier characters, so canonical names
// never collide with participant identifiers or each other.
const dmDelimiter = "-"

// DMChannelName returns the canonical name of the direct-message channel
// between a and b, independent of argument order.
func DMChannelName(a, b Participant) string {
	if b < a {
		a, b = b, a
	}
	return string(a) + dmDelimiter + string(b)
}

// Naming resolves caller-supplied channel handles to canonical names.
// The lookup table covers the group shorthand and both orders of every
// pair shorthand; anything else passes through unchanged as a raw name
// (a bad raw name surfaces later as ErrChannelNotFound).
type Naming struct {
	handles map[string]string
}

func NewNaming(roster Roster) Naming {
	handles := map[string]string{GroupChannelName: GroupChannelName}
	for _, pair := range roster.Pairs() {
		canonical := DMChannelName(pair[0], pair[1])
		handles[string(pair[0])+dmDelimiter+string(pair[1])] = canonical
		handles[string(pair[1])+dmDelimiter+string(pair[0])] = canonical
	}
	return Naming{handles: handles}
}

func (n Naming) Resolve(handle string) string {
	if canonical, ok := n.handles[handle]; ok {
		return canonical
	}
	return handle
}
