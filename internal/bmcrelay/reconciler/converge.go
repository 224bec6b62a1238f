// Package reconciler implements the Subscription Reconciler: per-endpoint
// diff-and-converge against a desired subscription set, a bounded-parallel
// fleet driver, and the periodic refresh cadence.
package reconciler

import (
	"sort"
	"strings"

	"github.com/cray-hpc/bmcrelay/models"
)

// Plan is the set of operations one endpoint's convergence must execute:
// every Remove before every Add, per the per-endpoint convergence contract.
type Plan struct {
	Remove []models.LiveSubscription
	Add    []models.Subscription
}

// Converge computes the Plan that brings an endpoint's live set into
// agreement with its desired set.
//
// Step 1: for each desired entry, find a live entry with the same Context
// (partial_match). None found → add. Found but not a full field match →
// remove the live entry and add the desired one. Full match → keep (no
// operation); the live entry is removed from further consideration either
// way.
//
// Step 2: any live entry with no desired match is removed if its Context
// begins with namespacePrefix, or if purgeUnrecognized is set; otherwise it
// is left alone.
func Converge(desired []models.Subscription, live []models.LiveSubscription, namespacePrefix string, purgeUnrecognized bool) Plan {
	var plan Plan

	consumed := make([]bool, len(live))

	for _, d := range desired {
		idx := -1
		for i, l := range live {
			if consumed[i] {
				continue
			}
			if l.Context == d.Context {
				idx = i
				break
			}
		}

		if idx < 0 {
			plan.Add = append(plan.Add, d)
			continue
		}

		consumed[idx] = true
		if fullMatch(d, live[idx].Subscription) {
			continue // keep — no operation
		}
		plan.Remove = append(plan.Remove, live[idx])
		plan.Add = append(plan.Add, d)
	}

	for i, l := range live {
		if consumed[i] {
			continue
		}
		if strings.HasPrefix(l.Context, namespacePrefix) || purgeUnrecognized {
			plan.Remove = append(plan.Remove, l)
		}
	}

	return plan
}

// fullMatch compares every field of a desired subscription against a live
// one. List fields are compared as sorted sets; a missing (nil) list field
// is equivalent to an empty list.
func fullMatch(d models.Subscription, l models.Subscription) bool {
	return d.Context == l.Context &&
		d.Destination == l.Destination &&
		d.Protocol == l.Protocol &&
		sameSet(d.RegistryPrefixes, l.RegistryPrefixes) &&
		sameSet(d.ExcludeRegistryPrefixes, l.ExcludeRegistryPrefixes) &&
		sameSet(d.MessageIDs, l.MessageIDs) &&
		sameSet(d.ExcludeMessageIDs, l.ExcludeMessageIDs)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
