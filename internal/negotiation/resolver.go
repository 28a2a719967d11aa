// Package negotiation derives what a viewer sees for a product from the
// product's negotiation requests. Everything here is pure and safe for
// concurrent use.
package negotiation

import "exchange-service/internal/models"

// DisplayStatus is the badge shown for a product or negotiation
type DisplayStatus string

const (
	StatusAvailable DisplayStatus = "DISPONIVEL"
	StatusPending   DisplayStatus = "PENDENTE"
	StatusApproved  DisplayStatus = "APROVADA"
	StatusRejected  DisplayStatus = "RECUSADA"
	StatusCancelled DisplayStatus = "CANCELADA"
)

// ParseDisplayStatus accepts a display status or the request status it labels.
func ParseDisplayStatus(raw string) DisplayStatus {
	switch s := DisplayStatus(raw); s {
	case StatusAvailable, StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return s
	}
	return LabelFor(models.RequestStatus(raw))
}

// Action is the primary button offered to the viewer
type Action string

const (
	ActionNone            Action = "NONE"
	ActionViewNegotiation Action = "VIEW_NEGOTIATION"
	ActionAcceptReject    Action = "ACCEPT_REJECT"
	ActionRequest         Action = "REQUEST"
	ActionRequestPending  Action = "REQUEST_PENDING"
)

// View is the resolved state of a product for one viewer
type View struct {
	DisplayStatus DisplayStatus `json:"display_status"`
	Editable      bool          `json:"editable"`
	PrimaryAction Action        `json:"primary_action"`
	// RequestID is the request the status was derived from, 0 when available.
	RequestID int64 `json:"request_id,omitempty"`
}

// LabelFor maps a request status onto its display status. Drafts and
// unknown statuses have no label.
func LabelFor(status models.RequestStatus) DisplayStatus {
	switch status {
	case models.RequestStatusPending:
		return StatusPending
	case models.RequestStatusApproved:
		return StatusApproved
	case models.RequestStatusRejected:
		return StatusRejected
	case models.RequestStatusCancelled:
		return StatusCancelled
	}
	return ""
}

// Resolve computes the view of product p for viewerID. A nil product or
// missing fields resolve to the available state; Resolve never fails.
func Resolve(p *models.Product, viewerID int64) View {
	if p == nil {
		return View{DisplayStatus: StatusAvailable, PrimaryAction: ActionNone}
	}
	isOwner := p.OwnerID != 0 && viewerID == p.OwnerID

	selected, ok := MostRelevant(p.Requests)
	if ok && selected.Status.IsActive() {
		view := View{
			DisplayStatus: LabelFor(selected.Status),
			RequestID:     selected.ID,
		}
		switch {
		case isOwner:
			view.PrimaryAction = ActionAcceptReject
		case viewerID != 0 && viewerID == selected.RequesterID:
			view.PrimaryAction = ActionViewNegotiation
		case selected.Status == models.RequestStatusPending:
			view.PrimaryAction = ActionRequestPending
		default:
			view.PrimaryAction = ActionNone
		}
		return view
	}

	// Nothing holds the product: it is available again, except for a
	// requester whose own latest request ended up cancelled.
	if !isOwner && viewerID != 0 {
		own, found := MostRelevant(requestsBy(p.Requests, viewerID))
		if found && own.Status == models.RequestStatusCancelled {
			return View{
				DisplayStatus: StatusCancelled,
				PrimaryAction: ActionNone,
				RequestID:     own.ID,
			}
		}
	}

	view := View{DisplayStatus: StatusAvailable, Editable: isOwner, PrimaryAction: ActionNone}
	if !isOwner {
		view.PrimaryAction = ActionRequest
	}
	return view
}

// MostRelevant picks the request that drives the product's status: PENDING
// before APPROVED before terminal ones, then the most recent, then the
// highest ID. Drafts and unknown statuses are never selected.
func MostRelevant(requests []models.NegotiationRequest) (models.NegotiationRequest, bool) {
	var (
		best  models.NegotiationRequest
		found bool
	)
	for _, r := range requests {
		if priority(r.Status) < 0 {
			continue
		}
		if !found || moreRelevant(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

func moreRelevant(a, b models.NegotiationRequest) bool {
	pa, pb := priority(a.Status), priority(b.Status)
	if pa != pb {
		return pa < pb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// priority ranks visible statuses; -1 means the request is ignored.
func priority(s models.RequestStatus) int {
	switch s {
	case models.RequestStatusPending:
		return 0
	case models.RequestStatusApproved:
		return 1
	case models.RequestStatusRejected, models.RequestStatusCancelled:
		return 2
	}
	return -1
}

func requestsBy(requests []models.NegotiationRequest, requesterID int64) []models.NegotiationRequest {
	var out []models.NegotiationRequest
	for _, r := range requests {
		if r.RequesterID == requesterID {
			out = append(out, r)
		}
	}
	return out
}
