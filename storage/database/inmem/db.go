package inmemdb

import (
	"sync"

	"github.com/rtemis/reimbursement/core/claim"
	"github.com/rtemis/reimbursement/core/fee"
	"github.com/rtemis/reimbursement/core/user"
)

// DB keeps every table in memory. Used by tests and the in-memory dev mode.
type (
	DB struct {
		user   *userTable
		school *schoolTable
		claim  *claimTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	schoolTable struct {
		mutex     sync.RWMutex
		schools   map[string]*fee.School
		stateFees []fee.StateFee // declaration order
		students  []fee.Student  // insertion order
	}

	claimTable struct {
		mutex   sync.RWMutex
		table   map[string]*claim.Claim
		history map[string][]claim.HistoryEntry
		pkCount int64
	}
)

func Open() *DB {
	return &DB{
		user:   &userTable{table: make(map[string]*user.User)},
		school: &schoolTable{schools: make(map[string]*fee.School)},
		claim: &claimTable{
			table:   make(map[string]*claim.Claim),
			history: make(map[string][]claim.HistoryEntry),
		},
	}
}
