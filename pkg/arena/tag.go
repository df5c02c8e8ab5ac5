package arena

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// tagSeparator joins the segments of a client order id. Agent ids may
// themselves contain underscores, so parsing always splits from the right.
const tagSeparator = "_"

// venueTagLimit is the longest client order id the venue accepts.
const venueTagLimit = 36

// ComposeTag builds the ownership tag carried as the client order id:
// {agentId}_{symbol}_{epochMillis}. Every order the arena places carries one;
// reconciliation uses it to route venue positions back to their agent.
func ComposeTag(agentID, symbol string, at time.Time) string {
	return agentID + tagSeparator + symbol + tagSeparator + strconv.FormatInt(at.UnixMilli(), 10)
}

// ParseTag recovers the owning agent, symbol and placement time from a client
// order id. The two rightmost segments are the epoch millis and the symbol;
// everything before them is the agent id.
func ParseTag(tag string) (agentID, symbol string, at time.Time, err error) {
	last := strings.LastIndex(tag, tagSeparator)
	if last <= 0 {
		return "", "", time.Time{}, fmt.Errorf("arena: tag %q: missing timestamp segment", tag)
	}
	millisRaw := tag[last+1:]
	rest := tag[:last]

	mid := strings.LastIndex(rest, tagSeparator)
	if mid <= 0 {
		return "", "", time.Time{}, fmt.Errorf("arena: tag %q: missing symbol segment", tag)
	}
	symbol = rest[mid+1:]
	agentID = rest[:mid]

	if symbol == "" || agentID == "" {
		return "", "", time.Time{}, fmt.Errorf("arena: tag %q: empty segment", tag)
	}
	millis, perr := strconv.ParseInt(millisRaw, 10, 64)
	if perr != nil || millis <= 0 {
		return "", "", time.Time{}, fmt.Errorf("arena: tag %q: invalid timestamp %q", tag, millisRaw)
	}
	return agentID, symbol, time.UnixMilli(millis).UTC(), nil
}

// tagFits reports whether a composed tag for the longest configured symbol
// stays within the venue's client order id limit.
func tagFits(agentID string, symbols []string) error {
	longest := 0
	for _, s := range symbols {
		if len(s) > longest {
			longest = len(s)
		}
	}
	// 13 digits of epoch millis plus two separators.
	if n := len(agentID) + longest + 2 + 13; n > venueTagLimit {
		return fmt.Errorf("arena: agent id %q yields a %d-char order tag, venue limit is %d", agentID, n, venueTagLimit)
	}
	return nil
}
