// internal/exchange/lifecycle.go
package exchange

import (
	"fmt"

	"github.com/lib/pq"
)

// role says who may perform a transition.
type role int

const (
	recipientOnly role = iota
	eitherParty
)

func (r role) predicate(param int) string {
	if r == recipientOnly {
		return fmt.Sprintf("recipient_id = $%d", param)
	}
	return fmt.Sprintf("(sender_id = $%d OR recipient_id = $%d)", param, param)
}

// transition describes one status change of an exchange request.
type transition struct {
	name  string
	to    string
	from  []string
	who   role
	event string
}

var (
	approve = transition{
		name:  "approve",
		to:    StatusApproved,
		from:  []string{StatusPending},
		who:   recipientOnly,
		event: "exchange_approved",
	}
	complete = transition{
		name:  "complete",
		to:    StatusCompleted,
		from:  []string{StatusApproved},
		who:   eitherParty,
		event: "exchange_completed",
	}
	reject = transition{
		name:  "reject",
		to:    StatusRejected,
		from:  []string{StatusPending},
		who:   recipientOnly,
		event: "exchange_rejected",
	}
)

// query builds the conditional update for t. Only the role is checked unless
// strict is set, in which case the request must also be in a legal prior
// status.
func (t transition) query(id, actorID int64, strict bool) (string, []interface{}) {
	q := `UPDATE exchange_requests SET status = $1 WHERE id = $2 AND ` + t.who.predicate(3)
	args := []interface{}{t.to, id, actorID}
	if strict {
		q += ` AND status = ANY($4)`
		args = append(args, pq.Array(t.from))
	}
	q += ` RETURNING id, book_id, sender_id, recipient_id, status, created_at`
	return q, args
}
