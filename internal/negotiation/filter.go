package negotiation

import (
	"sort"
	"strings"

	"exchange-service/internal/models"
)

// ProductFilter narrows product lists. Zero fields match everything.
type ProductFilter struct {
	Name     string
	Status   DisplayStatus
	Category models.Category
}

// Match reports whether product p with resolved view v passes the filter
func (f ProductFilter) Match(p *models.Product, v View) bool {
	if p == nil {
		return false
	}
	if f.Name != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.Status != "" && v.DisplayStatus != f.Status {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	return true
}

// Role of the viewer inside a negotiation
type Role string

const (
	RoleRequester Role = "REQUESTER"
	RoleOwner     Role = "OWNER"
)

// ParseRole returns "" for anything unknown
func ParseRole(raw string) Role {
	switch r := Role(strings.ToUpper(strings.TrimSpace(raw))); r {
	case RoleRequester, RoleOwner:
		return r
	}
	return ""
}

// RoleOf tells how viewerID takes part in request r on product p, "" if not at all.
func RoleOf(r *models.NegotiationRequest, p *models.Product, viewerID int64) Role {
	switch {
	case r == nil || viewerID == 0:
		return ""
	case r.RequesterID == viewerID:
		return RoleRequester
	case p != nil && p.OwnerID == viewerID:
		return RoleOwner
	}
	return ""
}

// RequestFilter narrows negotiation lists. Zero fields match everything.
type RequestFilter struct {
	Status   models.RequestStatus
	Category models.Category
	Role     Role
}

// Match reports whether request r on product p passes the filter for viewerID
func (f RequestFilter) Match(r *models.NegotiationRequest, p *models.Product, viewerID int64) bool {
	if r == nil {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Category != "" && (p == nil || p.Category != f.Category) {
		return false
	}
	if f.Role != "" && RoleOf(r, p, viewerID) != f.Role {
		return false
	}
	return true
}

// VisibleTo drops drafts that viewerID did not author.
func VisibleTo(requests []models.NegotiationRequest, viewerID int64) []models.NegotiationRequest {
	out := make([]models.NegotiationRequest, 0, len(requests))
	for _, r := range requests {
		if r.Status == models.RequestStatusProcessing && r.RequesterID != viewerID {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SortRequests orders pending requests first, then the most recent.
func SortRequests(requests []models.NegotiationRequest) {
	sort.SliceStable(requests, func(i, j int) bool {
		a, b := requests[i], requests[j]
		ap, bp := a.Status == models.RequestStatusPending, b.Status == models.RequestStatusPending
		if ap != bp {
			return ap
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
