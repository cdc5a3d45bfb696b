package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"asset-ledger-backend/internal/model"
	"asset-ledger-backend/internal/store"
)

// Role identifies who is driving a mutation. The customer registers and
// submits assets; the reviewer (mudaless side) scores and decides them.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleReviewer Role = "reviewer"
)

// ValidRole reports whether r is a recognized role.
func ValidRole(r Role) bool {
	return r == RoleCustomer || r == RoleReviewer
}

// Edit carries the writable fields of a mutation request. A nil pointer means
// "leave unchanged". Immutable reference fields have no representation here,
// so no role can ever touch them. Attachments are not an Edit field either:
// their binaries and metadata rows live outside the asset record, so they are
// mutated only through the attachment endpoints, which enforce the same
// role and status gates.
type Edit struct {
	CatalogName *string `json:"catalogName"`
	Description *string `json:"description"`
	Building    *string `json:"building"`
	Floor       *string `json:"floor"`
	G           *int    `json:"g"`
	U           *int    `json:"u"`
	T           *int    `json:"t"`
	Comment     *string `json:"comment"`
}

// ValidationError reports the fields that block a transition. It is raised
// before any write is attempted.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "required fields missing or invalid: " + strings.Join(e.Fields, ", ")
}

// PermissionError reports fields a role may not change in the record's
// current state.
type PermissionError struct {
	Role   Role
	Status model.AssetStatus
	Fields []string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("role %s may not change %s while status is %s",
		e.Role, strings.Join(e.Fields, ", "), e.Status)
}

// TransitionError reports a trigger fired from a state that does not allow it.
type TransitionError struct {
	From model.AssetStatus
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s an asset with status %s", e.Op, e.From)
}

// Machine validates workflow operations and applies them as single atomic
// writes through the repository's conflict policy. The caller hands in its
// view of the record; the view's updatedAt is the staleness baseline.
type Machine struct {
	repo *store.Repository
	now  func() time.Time
}

// NewMachine creates a workflow machine over the given repository.
func NewMachine(repo *store.Repository) *Machine {
	return &Machine{repo: repo, now: time.Now}
}

// Edit applies a field change without moving the status. Customers save
// drafts this way while the record is theirs; reviewers record scores before
// deciding.
func (m *Machine) Edit(ctx context.Context, role Role, view model.Asset, edit Edit) (store.Outcome, error) {
	next, err := applyEdit(role, view, edit)
	if err != nil {
		return store.Outcome{}, err
	}
	return m.write(ctx, next, view.UpdatedAt), nil
}

// Submit moves a record the customer controls into review. Rejected records
// resubmit through the same trigger.
func (m *Machine) Submit(ctx context.Context, role Role, view model.Asset, edit Edit) (store.Outcome, error) {
	if role != RoleCustomer {
		return store.Outcome{}, &PermissionError{Role: role, Status: view.Status, Fields: []string{"status"}}
	}
	if !view.CustomerEditable() {
		return store.Outcome{}, &TransitionError{From: view.Status, Op: "submit"}
	}

	next, err := applyEdit(role, view, edit)
	if err != nil {
		return store.Outcome{}, err
	}

	var missing []string
	if strings.TrimSpace(next.Building) == "" {
		missing = append(missing, "building")
	}
	if strings.TrimSpace(next.Floor) == "" {
		missing = append(missing, "floor")
	}
	if len(missing) > 0 {
		return store.Outcome{}, &ValidationError{Fields: missing}
	}

	next.Status = model.StatusPendingReview
	return m.write(ctx, next, view.UpdatedAt), nil
}

// Approve accepts a record under review. The reviewer's scores may arrive
// with the decision; all three must be set and within range.
func (m *Machine) Approve(ctx context.Context, role Role, view model.Asset, edit Edit) (store.Outcome, error) {
	if role != RoleReviewer {
		return store.Outcome{}, &PermissionError{Role: role, Status: view.Status, Fields: []string{"status"}}
	}
	if view.Status != model.StatusPendingReview {
		return store.Outcome{}, &TransitionError{From: view.Status, Op: "approve"}
	}

	next, err := applyEdit(role, view, edit)
	if err != nil {
		return store.Outcome{}, err
	}

	var missing []string
	for _, s := range []struct {
		name  string
		value *int
	}{{"g", next.G}, {"u", next.U}, {"t", next.T}} {
		if s.value == nil || *s.value < 1 || *s.value > 5 {
			missing = append(missing, s.name)
		}
	}
	if len(missing) > 0 {
		return store.Outcome{}, &ValidationError{Fields: missing}
	}

	next.Status = model.StatusApproved
	return m.write(ctx, next, view.UpdatedAt), nil
}

// Reject sends a record back to the customer. The reviewer must say why.
func (m *Machine) Reject(ctx context.Context, role Role, view model.Asset, comment string) (store.Outcome, error) {
	if role != RoleReviewer {
		return store.Outcome{}, &PermissionError{Role: role, Status: view.Status, Fields: []string{"status"}}
	}
	if view.Status != model.StatusPendingReview {
		return store.Outcome{}, &TransitionError{From: view.Status, Op: "reject"}
	}
	if strings.TrimSpace(comment) == "" {
		return store.Outcome{}, &ValidationError{Fields: []string{"comment"}}
	}

	next := view
	next.Comment = comment
	next.Status = model.StatusRejected
	return m.write(ctx, next, view.UpdatedAt), nil
}

// write stamps the transition time and performs the single atomic write.
func (m *Machine) write(ctx context.Context, next model.Asset, baseline time.Time) store.Outcome {
	next.UpdatedAt = m.now()
	return m.repo.UpsertOne(ctx, next, baseline)
}

// applyEdit enforces the field-mutability matrix: customers own the
// descriptive and location fields while the record is theirs, reviewers own
// the scores and the comment while the record is under review.
func applyEdit(role Role, a model.Asset, e Edit) (model.Asset, error) {
	customer := role == RoleCustomer && a.CustomerEditable()
	reviewer := role == RoleReviewer && a.Status == model.StatusPendingReview

	var denied, invalid []string

	if e.CatalogName != nil {
		if customer {
			a.CatalogName = *e.CatalogName
		} else {
			denied = append(denied, "catalogName")
		}
	}
	if e.Description != nil {
		if customer {
			a.Description = *e.Description
		} else {
			denied = append(denied, "description")
		}
	}
	if e.Building != nil {
		if customer {
			a.Building = *e.Building
		} else {
			denied = append(denied, "building")
		}
	}
	if e.Floor != nil {
		if customer {
			a.Floor = *e.Floor
		} else {
			denied = append(denied, "floor")
		}
	}
	for _, s := range []struct {
		name  string
		value *int
		dst   **int
	}{{"g", e.G, &a.G}, {"u", e.U, &a.U}, {"t", e.T, &a.T}} {
		if s.value == nil {
			continue
		}
		if !reviewer {
			denied = append(denied, s.name)
			continue
		}
		if *s.value < 1 || *s.value > 5 {
			invalid = append(invalid, s.name)
			continue
		}
		*s.dst = s.value
	}
	if e.Comment != nil {
		if reviewer {
			a.Comment = *e.Comment
		} else {
			denied = append(denied, "comment")
		}
	}

	if len(denied) > 0 {
		return a, &PermissionError{Role: role, Status: a.Status, Fields: denied}
	}
	if len(invalid) > 0 {
		return a, &ValidationError{Fields: invalid}
	}
	return a, nil
}
