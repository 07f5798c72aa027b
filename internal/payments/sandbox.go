package payments

import (
	"context"
	"sync"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// Sandbox source tokens with special behavior.
const (
	SandboxSourceDecline       = "tok_decline"
	SandboxSourceRequireAction = "tok_requires_action"
)

// SandboxProcessor keeps holds in memory. It mirrors real processors by
// rejecting repeated capture or cancel of a settled hold.
type SandboxProcessor struct {
	mu    sync.Mutex
	holds map[string]*Hold
	keys  map[string]string
}

func NewSandboxProcessor() *SandboxProcessor {
	return &SandboxProcessor{
		holds: make(map[string]*Hold),
		keys:  make(map[string]string),
	}
}

func (p *SandboxProcessor) Name() string { return "sandbox" }

func (p *SandboxProcessor) ConfirmsClientSide() bool { return true }

// Confirm plays the payer completing a pending hold.
func (p *SandboxProcessor) Confirm(holdID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	hold, ok := p.holds[holdID]
	if !ok {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "hold %s not found", holdID)
	}
	if hold.Status != enums.HoldStatusPending {
		return pkgerrors.Newf(pkgerrors.CodePayment, "hold %s is %s", holdID, hold.Status)
	}
	hold.Status = enums.HoldStatusAuthorized
	return nil
}

func (p *SandboxProcessor) Authorize(_ context.Context, req AuthorizationRequest) (Hold, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.keys[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return *p.holds[id], nil
	}
	if req.SourceID == SandboxSourceDecline {
		return Hold{}, pkgerrors.New(pkgerrors.CodePayment, "card declined")
	}

	status := enums.HoldStatusAuthorized
	if req.SourceID == SandboxSourceRequireAction {
		status = enums.HoldStatusPending
	}
	id := "sbx_" + uuid.NewString()
	hold := &Hold{
		HoldID:      id,
		ClientToken: id + "_secret",
		Status:      status,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
	}
	p.holds[id] = hold
	if req.IdempotencyKey != "" {
		p.keys[req.IdempotencyKey] = id
	}
	return *hold, nil
}

func (p *SandboxProcessor) Capture(_ context.Context, holdID, _ string) (Hold, error) {
	return p.settle(holdID, enums.HoldStatusCaptured)
}

func (p *SandboxProcessor) Cancel(_ context.Context, holdID, _ string) (Hold, error) {
	return p.settle(holdID, enums.HoldStatusReleased)
}

func (p *SandboxProcessor) Retrieve(_ context.Context, holdID string) (Hold, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	hold, ok := p.holds[holdID]
	if !ok {
		return Hold{}, pkgerrors.Newf(pkgerrors.CodeNotFound, "hold %s not found", holdID)
	}
	return *hold, nil
}

func (p *SandboxProcessor) settle(holdID string, target enums.HoldStatus) (Hold, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	hold, ok := p.holds[holdID]
	if !ok {
		return Hold{}, pkgerrors.Newf(pkgerrors.CodeNotFound, "hold %s not found", holdID)
	}
	switch hold.Status {
	case enums.HoldStatusAuthorized:
		hold.Status = target
		return *hold, nil
	case enums.HoldStatusPending:
		if target == enums.HoldStatusReleased {
			hold.Status = target
			return *hold, nil
		}
	}
	return Hold{}, pkgerrors.Newf(pkgerrors.CodePayment, "hold %s is %s", holdID, hold.Status)
}
