package view

import (
	"github.com/samber/lo"

	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
)

// CashBalance is the fixed-schema cash record of one user.
type CashBalance struct {
	Balance int64 `json:"balance"`
	Locked  int64 `json:"locked"`
}

// TokenBalance is one side of a token position.
type TokenBalance struct {
	Quantity int64 `json:"quantity"`
	Locked   int64 `json:"locked"`
}

// TokenPosition holds both sides of a user's position in one symbol. Both
// sides are always present.
type TokenPosition struct {
	Yes TokenBalance `json:"yes"`
	No  TokenBalance `json:"no"`
}

// Balances is the full balance sheet.
type Balances struct {
	Cash   map[string]CashBalance              `json:"cash"`
	Tokens map[string]map[string]TokenPosition `json:"tokens"` // user → symbol → position
}

// BuildBalances assembles the balance sheet from account snapshots.
func BuildBalances(cash []model.CashAccount, tokens []model.TokenAccount) Balances {
	b := Balances{
		Cash: lo.Associate(cash, func(a model.CashAccount) (string, CashBalance) {
			return a.UserID, CashBalance{Balance: a.Available, Locked: a.Locked}
		}),
		Tokens: make(map[string]map[string]TokenPosition),
	}

	for user, accts := range lo.GroupBy(tokens, func(a model.TokenAccount) string { return a.UserID }) {
		positions := make(map[string]TokenPosition)
		for _, a := range accts {
			pos := positions[a.SymbolID]
			tb := TokenBalance{Quantity: a.Available, Locked: a.Locked}
			switch a.Side {
			case model.SideYes:
				pos.Yes = tb
			case model.SideNo:
				pos.No = tb
			}
			positions[a.SymbolID] = pos
		}
		b.Tokens[user] = positions
	}
	return b
}
