// Package routing decides how a payment reaches its destination: in-house
// for same-bank transfers, or through a tenant's clearing adapter otherwise.
package routing

import (
	"context"
	"log"

	"github.com/clearfab/gateway/internal/clearing"
	"github.com/clearfab/gateway/internal/faults"
	"github.com/clearfab/gateway/internal/tenant"
)

// Routing types and modes.
const (
	TypeSameBank  = "SAME_BANK"
	TypeOtherBank = "OTHER_BANK"

	ModeSync  = "SYNC"
	ModeAsync = "ASYNC"

	FormatJSON = "JSON"
	FormatXML  = "XML"
)

// Account identifies one side of the transfer.
type Account struct {
	AccountNumber string `json:"accountNumber"`
	BankCode      string `json:"bankCode"`
}

// RouteRequest is the router's input.
type RouteRequest struct {
	FromAccount         *Account `json:"fromAccount,omitempty"`
	ToAccount           *Account `json:"toAccount,omitempty"`
	PaymentType         string   `json:"paymentType"`
	LocalInstrumentCode string   `json:"localInstrumentCode"`
}

// PaymentRouting is the decision. AdapterID names the winning adapter so the
// dispatch path can append to its audit log.
type PaymentRouting struct {
	RoutingType              string `json:"routingType"`
	AdapterID                string `json:"adapterId,omitempty"`
	ClearingSystemCode       string `json:"clearingSystemCode,omitempty"`
	LocalInstrumentationCode string `json:"localInstrumentationCode"`
	PaymentType              string `json:"paymentType"`
	ProcessingMode           string `json:"processingMode"`
	MessageFormat            string `json:"messageFormat"`
	Description              string `json:"description"`
}

// AdapterSource supplies the tenant's active adapters. The store's clearing
// repository implements it.
type AdapterSource interface {
	ListActiveByTenant(ctx context.Context, tc tenant.Context) ([]*clearing.Adapter, error)
}

// Router is the routing decision point.
type Router struct {
	adapters AdapterSource
	logger   *log.Logger
}

func NewRouter(adapters AdapterSource) *Router {
	return &Router{
		adapters: adapters,
		logger:   log.New(log.Writer(), "[ROUTER] ", log.LstdFlags),
	}
}

// Decide picks the routing for one payment. Same bank both sides is handled
// in-house; anything else needs a clearing adapter with a matching route,
// and the absence of one is a hard NoRouteAvailable (never a default).
func (r *Router) Decide(ctx context.Context, req RouteRequest) (*PaymentRouting, error) {
	if req.FromAccount != nil && req.ToAccount != nil {
		if req.FromAccount.AccountNumber != "" &&
			req.FromAccount.AccountNumber == req.ToAccount.AccountNumber {
			return nil, faults.New(faults.ValidationFailed,
				"debtor and creditor account numbers are identical")
		}
		if req.FromAccount.BankCode != "" && req.FromAccount.BankCode == req.ToAccount.BankCode {
			return &PaymentRouting{
				RoutingType:              TypeSameBank,
				LocalInstrumentationCode: req.LocalInstrumentCode,
				PaymentType:              req.PaymentType,
				ProcessingMode:           ModeSync,
				MessageFormat:            FormatJSON,
				Description:              "intra-bank transfer, settled in-house",
			}, nil
		}
	}

	if req.ToAccount == nil || req.ToAccount.BankCode == "" {
		return nil, faults.New(faults.ValidationFailed,
			"creditor bank code is required for inter-bank routing")
	}

	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	adapters, err := r.adapters.ListActiveByTenant(ctx, tc)
	if err != nil {
		return nil, err
	}

	best := selectRoute(adapters, req.PaymentType, req.ToAccount.BankCode)
	if best == nil {
		r.logger.Printf("no route for tenant=%s paymentType=%s destination=%s",
			tc.TenantID, req.PaymentType, req.ToAccount.BankCode)
		return nil, faults.Newf(faults.NoRouteAvailable,
			"no clearing route for payment type %s to bank %s",
			req.PaymentType, req.ToAccount.BankCode)
	}

	return &PaymentRouting{
		RoutingType:              TypeOtherBank,
		AdapterID:                best.adapter.AdapterID,
		ClearingSystemCode:       best.adapter.Name,
		LocalInstrumentationCode: req.LocalInstrumentCode,
		PaymentType:              req.PaymentType,
		ProcessingMode:           ModeAsync,
		MessageFormat:            FormatXML,
		Description:              "inter-bank transfer via " + best.adapter.Network,
	}, nil
}

type candidate struct {
	adapter *clearing.Adapter
	route   clearing.Route
}

// selectRoute scans every active adapter's routes for (paymentType source,
// destination bank) matches and keeps the winner by priority then routeId.
func selectRoute(adapters []*clearing.Adapter, paymentType, destBank string) *candidate {
	var best *candidate
	for _, a := range adapters {
		for _, rt := range a.Routes {
			if rt.Status != clearing.StatusActive {
				continue
			}
			if rt.Source != paymentType || rt.Destination != destBank {
				continue
			}
			c := &candidate{adapter: a, route: rt}
			if best == nil ||
				c.route.Priority < best.route.Priority ||
				(c.route.Priority == best.route.Priority && c.route.RouteID < best.route.RouteID) {
				best = c
			}
		}
	}
	return best
}
