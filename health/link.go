package health

import (
	"fmt"
	"time"

	"github.com/c360/mavrouter/link"
)

// FromLink derives a link's health from its reader stats. A failed link is
// unhealthy and a closed one degraded. An open link that has been silent for
// longer than staleAfter is degraded; staleAfter <= 0 disables that check.
func FromLink(name string, stats link.Stats, staleAfter time.Duration) Status {
	component := "link:" + name
	switch stats.State {
	case link.StateFailed:
		return NewUnhealthy(component, "transport failed")
	case link.StateClosed:
		return NewDegraded(component, "closed")
	}

	if staleAfter > 0 && !stats.LastActivity.IsZero() {
		if idle := time.Since(stats.LastActivity); idle > staleAfter {
			return NewDegraded(component, fmt.Sprintf("no traffic for %s", idle.Truncate(time.Second)))
		}
	}
	return NewHealthy(component, "open")
}
