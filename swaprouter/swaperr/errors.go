// Package swaperr defines the failure kinds reported by the swap router core.
//
// Every failure the core can produce has its own Kind, and every Kind belongs to
// exactly one Category. Kinds implement the error interface themselves so callers
// can match them with errors.Is:
//
//	if errors.Is(err, swaperr.InvalidNonce) { ... }
package swaperr

import (
	"errors"
	"fmt"
)

// Category groups failure kinds by how a caller is expected to react to them.
type Category uint8

const (
	CategoryUnknown Category = iota
	// InputValidation failures are always fixable by the caller.
	InputValidation
	AccessControl
	// ReplayOrOrdering failures require the caller to refetch state (nonce, refresh window).
	ReplayOrOrdering
	EconomicLimit
	LiquidityError
	// ArithmeticError failures abort the whole operation, they are never saturated.
	ArithmeticError
	// SystemState failures mean the router is halted until an administrator clears it.
	SystemState
	SettlementError
)

var categoryNames = map[Category]string{
	CategoryUnknown:  "Unknown",
	InputValidation:  "InputValidation",
	AccessControl:    "AccessControl",
	ReplayOrOrdering: "ReplayOrOrdering",
	EconomicLimit:    "EconomicLimit",
	LiquidityError:   "LiquidityError",
	ArithmeticError:  "ArithmeticError",
	SystemState:      "SystemState",
	SettlementError:  "SettlementError",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", uint8(c))
}

// Kind identifies one distinct failure.
type Kind uint16

const (
	KindUnknown Kind = iota

	// input validation
	InvalidAddress
	IdenticalTokens
	ZeroAmount
	InvalidAmount
	FeeTooHigh
	SlippageTooHigh
	TransactionExpired
	DeadlineTooSoon
	PoolNotFound
	PoolAlreadyExists
	InvalidInitialization
	InvalidHash
	MalformedRequest

	// access control
	Unauthorized
	UserMismatch
	NotValidator
	UnauthorizedEmergencyAction

	// replay / ordering
	InvalidNonce
	UpdateTooFrequent

	// economic limits
	AmountBelowMinimum
	AmountAboveMaximum
	DailyVolumeExceeded
	PriceImpactTooHigh
	InsufficientOutputAmount

	// liquidity
	InsufficientLiquidity
	PoolLiquidityTooLow
	NoPoolForPair
	NoVerifiedPoolAvailable
	EmptyRoute
	UnverifiedRouteStep

	// arithmetic
	ArithmeticOverflow
	ArithmeticUnderflow
	DivisionByZero
	ReserveExceedsPackedWidth

	// system state
	Paused
	CircuitBreakerTriggered
	RegistryPaused

	// settlement
	InvalidSourceChain
	InsufficientFinalityBuffer
	DisputesDisabled
	SettlementNotFound
	DisputeAlreadyOpen
)

type kindInfo struct {
	name     string
	category Category
}

var kinds = map[Kind]kindInfo{
	KindUnknown: {"Unknown", CategoryUnknown},

	InvalidAddress:        {"InvalidAddress", InputValidation},
	IdenticalTokens:       {"IdenticalTokens", InputValidation},
	ZeroAmount:            {"ZeroAmount", InputValidation},
	InvalidAmount:         {"InvalidAmount", InputValidation},
	FeeTooHigh:            {"FeeTooHigh", InputValidation},
	SlippageTooHigh:       {"SlippageTooHigh", InputValidation},
	TransactionExpired:    {"TransactionExpired", InputValidation},
	DeadlineTooSoon:       {"DeadlineTooSoon", InputValidation},
	PoolNotFound:          {"PoolNotFound", InputValidation},
	PoolAlreadyExists:     {"PoolAlreadyExists", InputValidation},
	InvalidInitialization: {"InvalidInitialization", InputValidation},
	InvalidHash:           {"InvalidHash", InputValidation},
	MalformedRequest:      {"MalformedRequest", InputValidation},

	Unauthorized:                {"Unauthorized", AccessControl},
	UserMismatch:                {"UserMismatch", AccessControl},
	NotValidator:                {"NotValidator", AccessControl},
	UnauthorizedEmergencyAction: {"UnauthorizedEmergencyAction", AccessControl},

	InvalidNonce:      {"InvalidNonce", ReplayOrOrdering},
	UpdateTooFrequent: {"UpdateTooFrequent", ReplayOrOrdering},

	AmountBelowMinimum:       {"AmountBelowMinimum", EconomicLimit},
	AmountAboveMaximum:       {"AmountAboveMaximum", EconomicLimit},
	DailyVolumeExceeded:      {"DailyVolumeExceeded", EconomicLimit},
	PriceImpactTooHigh:       {"PriceImpactTooHigh", EconomicLimit},
	InsufficientOutputAmount: {"InsufficientOutputAmount", EconomicLimit},

	InsufficientLiquidity:   {"InsufficientLiquidity", LiquidityError},
	PoolLiquidityTooLow:     {"PoolLiquidityTooLow", LiquidityError},
	NoPoolForPair:           {"NoPoolForPair", LiquidityError},
	NoVerifiedPoolAvailable: {"NoVerifiedPoolAvailable", LiquidityError},
	EmptyRoute:              {"EmptyRoute", LiquidityError},
	UnverifiedRouteStep:     {"UnverifiedRouteStep", LiquidityError},

	ArithmeticOverflow:        {"ArithmeticOverflow", ArithmeticError},
	ArithmeticUnderflow:       {"ArithmeticUnderflow", ArithmeticError},
	DivisionByZero:            {"DivisionByZero", ArithmeticError},
	ReserveExceedsPackedWidth: {"ReserveExceedsPackedWidth", ArithmeticError},

	Paused:                  {"Paused", SystemState},
	CircuitBreakerTriggered: {"CircuitBreakerTriggered", SystemState},
	RegistryPaused:          {"RegistryPaused", SystemState},

	InvalidSourceChain:         {"InvalidSourceChain", SettlementError},
	InsufficientFinalityBuffer: {"InsufficientFinalityBuffer", SettlementError},
	DisputesDisabled:           {"DisputesDisabled", SettlementError},
	SettlementNotFound:         {"SettlementNotFound", SettlementError},
	DisputeAlreadyOpen:         {"DisputeAlreadyOpen", SettlementError},
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("Kind(%d)", uint16(k))
}

// Error makes a bare Kind usable as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// Category returns the category the kind belongs to.
func (k Kind) Category() Category {
	return kinds[k].category
}

// Error is a failure reported by the core. It always carries a Kind and may
// carry a human readable detail and an underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// New creates an Error of the given kind with a formatted detail message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error or a bare Kind with the same kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// Category returns the category of the error's kind.
func (e *Error) Category() Category { return e.Kind.Category() }

// KindOf returns the kind of the first core error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	var k Kind
	if errors.As(err, &k) {
		return k, true
	}
	return KindUnknown, false
}

// CategoryOf returns the category of err, or CategoryUnknown for errors that
// did not originate in the core.
func CategoryOf(err error) Category {
	k, ok := KindOf(err)
	if !ok {
		return CategoryUnknown
	}
	return k.Category()
}
