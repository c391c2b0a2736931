/*
seed.go - Demo data loader for testing and demonstrations

PURPOSE:

	Populates the database with a realistic referral chain so the
	distribution, batch, and funds endpoints have something to act on.

WHAT THE DEMO SEED BUILDS:

	A six-deep referral chain of active users around the trader "vt_alice":

	  agency_root          (level 5 ancestor, 5 direct referrals)
	    ib_emma            (level 4 ancestor, 4 direct referrals)
	      ib_david         (level 3 ancestor, 3 direct referrals)
	        ib_carol       (level 2 ancestor, 2 direct referrals)
	          ib_bob       (level 1 ancestor, 1 direct referral)
	            vt_alice   (the trading user)

	Extra children are attached per ancestor so every level's qualification
	rule (direct referrals >= level) is met, plus one inactive sibling to
	demonstrate the skip behavior.

NOTE:

	Seeding resets the database. Only use in development/demo environments.

SEE ALSO:
  - server.go: the /api/seed/demo route
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/brandfx/commission-engine/referral"
)

// SeedDemo wipes the database and loads the demo referral chain.
// POST /api/seed/demo
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	users, err := h.loadDemoChain(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed demo data", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "demo data loaded",
		"users":   users,
	})
}

func (h *Handler) loadDemoChain(ctx context.Context) ([]UserDTO, error) {
	chain := []struct {
		username string
		vantage  string
	}{
		{"agency_root", "vk_agency_root"},
		{"ib_emma", "vk_ib_emma"},
		{"ib_david", "vk_ib_david"},
		{"ib_carol", "vk_ib_carol"},
		{"ib_bob", "vk_ib_bob"},
		{"vt_alice", "vt_alice"},
	}

	var (
		created []UserDTO
		parent  *referral.UserID
	)
	for i, node := range chain {
		u := &referral.User{
			Username:   node.username,
			VantageKey: referral.VantageKey(node.vantage),
			ParentID:   parent,
			IsActive:   true,
		}
		if err := h.Store.CreateUser(ctx, u); err != nil {
			return nil, fmt.Errorf("seed %s: %w", node.username, err)
		}
		created = append(created, toUserDTO(u))

		// Pad direct referrals so the ancestor at depth d qualifies for
		// level d. The chain itself contributes one child per ancestor.
		level := len(chain) - 1 - i
		for extra := 0; extra < level-1; extra++ {
			pad := &referral.User{
				Username:   fmt.Sprintf("%s_ref%d", node.username, extra+1),
				VantageKey: referral.VantageKey(fmt.Sprintf("vk_%s_ref%d", node.username, extra+1)),
				ParentID:   &u.ID,
				IsActive:   true,
			}
			if err := h.Store.CreateUser(ctx, pad); err != nil {
				return nil, fmt.Errorf("seed %s: %w", pad.Username, err)
			}
		}
		parent = &u.ID
	}

	// One inactive sibling under the root, to demonstrate the skip rule.
	rootID := referral.UserID(created[0].ID)
	inactive := &referral.User{
		Username:   "dormant_ib",
		VantageKey: "vk_dormant_ib",
		ParentID:   &rootID,
		IsActive:   false,
	}
	if err := h.Store.CreateUser(ctx, inactive); err != nil {
		return nil, fmt.Errorf("seed dormant_ib: %w", err)
	}
	created = append(created, toUserDTO(inactive))

	return created, nil
}
