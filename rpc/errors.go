package rpc

import (
	"errors"
	"net/http"

	"escrowswap/native/listing"
)

var errIndexUnavailable = errors.New("listing index not configured")

// toRPCError maps engine failures onto JSON-RPC error objects. The message is
// the canonical condition name; data carries the detailed error text.
func toRPCError(err error) *RPCError {
	if err == nil {
		return nil
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, errIndexUnavailable) {
		return &RPCError{Code: codeServerError, Message: "index_unavailable", status: http.StatusServiceUnavailable}
	}
	condition := listing.Condition(err)
	switch {
	case errors.Is(err, listing.ErrListingNotFound), errors.Is(err, listing.ErrProfileNotFound),
		errors.Is(err, listing.ErrPlatformNotInitialized):
		return &RPCError{Code: codeNotFound, Message: condition, Data: err.Error(), status: http.StatusNotFound}
	case errors.Is(err, listing.ErrUnauthorizedAuthority), errors.Is(err, listing.ErrNotListingMaker):
		return &RPCError{Code: codeUnauthorized, Message: condition, Data: err.Error(), status: http.StatusForbidden}
	}
	code, status := codeServerError, http.StatusInternalServerError
	switch listing.Category(err) {
	case listing.CategoryPolicy:
		code, status = codePolicy, http.StatusBadRequest
	case listing.CategoryValidity:
		code, status = codeValidity, http.StatusBadRequest
	case listing.CategoryLifecycle:
		code, status = codeLifecycle, http.StatusBadRequest
	case listing.CategorySwap:
		code, status = codeSwap, http.StatusBadRequest
	case listing.CategoryGatekeeping:
		code, status = codeGatekeeping, http.StatusBadRequest
	case listing.CategoryConflict:
		code, status = codeConflict, http.StatusConflict
	case listing.CategoryIntegrity:
		code = codeIntegrity
	default:
		// internal failures do not leak storage details
		return &RPCError{Code: codeServerError, Message: condition, status: status}
	}
	return &RPCError{Code: code, Message: condition, Data: err.Error(), status: status}
}
