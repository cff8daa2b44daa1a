/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"strings"
)

var (
	ErrWrongPhase         = errors.New("action not available at this step")
	ErrUnknownParticipant = errors.New("no such participant")
	ErrNotContributor     = errors.New("only selected participants other than the payer contribute")
	ErrWheelBusy          = errors.New("wait for the wheel to stop")
	ErrRosterFull         = errors.New("the roster is full")
)

type Phase int

const (
	PhaseSelect Phase = iota
	PhaseWheel
	PhaseCalculate
)

func (p Phase) String() string {
	switch p {
	case PhaseSelect:
		return "select"
	case PhaseWheel:
		return "wheel"
	case PhaseCalculate:
		return "calculate"
	default:
		return "unknown"
	}
}

// Round is one pass through select, spin and settle. It is not safe for
// concurrent use; the owning hub serializes access.
type Round struct {
	roster    *Roster
	selection Selection
	wheel     Wheel
	phase     Phase

	payer         string
	bill          string
	payerShare    string
	contributions map[string]string
	result        *Settlement
}

func newRound(roster []string) *Round {
	return &Round{
		roster:        newRoster(roster),
		contributions: make(map[string]string),
	}
}

func (r *Round) Phase() Phase {
	return r.phase
}

func (r *Round) Toggle(name string) error {
	if r.phase != PhaseSelect {
		return ErrWrongPhase
	}

	name = strings.TrimSpace(name)
	if !r.roster.Has(name) {
		return ErrUnknownParticipant
	}

	r.selection.Toggle(name)

	return nil
}

// Add puts a free-form name on the roster and selects it.
func (r *Round) Add(name string) error {
	if r.phase != PhaseSelect {
		return ErrWrongPhase
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return ErrUnknownParticipant
	}

	if !r.roster.Has(name) && !r.roster.Add(name) {
		return ErrRosterFull
	}
	if !r.selection.Has(name) {
		r.selection.Toggle(name)
	}

	return nil
}

func (r *Round) Proceed() error {
	if r.phase != PhaseSelect {
		return ErrWrongPhase
	}
	if !r.selection.CanProceed() {
		return ErrTooFewParticipants
	}

	r.phase = PhaseWheel

	return nil
}

// Back returns to selection from an idle wheel.
func (r *Round) Back() error {
	if r.phase != PhaseWheel {
		return ErrWrongPhase
	}
	if r.wheel.State() != WheelIdle {
		return ErrWheelBusy
	}

	r.phase = PhaseSelect

	return nil
}

func (r *Round) Spin(rng RandomSource) (SpinOutcome, error) {
	if r.phase != PhaseWheel {
		return SpinOutcome{}, ErrWrongPhase
	}

	return r.wheel.Spin(r.selection.Names(), rng)
}

// Land reveals the payer and opens the calculator with an empty entry for
// every other participant.
func (r *Round) Land() (string, error) {
	payer, err := r.wheel.Land()
	if err != nil {
		return "", err
	}

	r.payer = payer
	r.phase = PhaseCalculate
	r.bill = ""
	r.payerShare = ""
	r.result = nil

	r.contributions = make(map[string]string)
	for _, name := range r.selection.Names() {
		if name != payer {
			r.contributions[name] = ""
		}
	}

	return payer, nil
}

func (r *Round) SetBill(raw string) error {
	if r.phase != PhaseCalculate {
		return ErrWrongPhase
	}

	r.bill = raw

	return nil
}

func (r *Round) SetPayerShare(raw string) error {
	if r.phase != PhaseCalculate {
		return ErrWrongPhase
	}

	r.payerShare = raw

	return nil
}

func (r *Round) SetContribution(name, raw string) error {
	if r.phase != PhaseCalculate {
		return ErrWrongPhase
	}

	if _, ok := r.contributions[name]; !ok {
		return ErrNotContributor
	}

	r.contributions[name] = raw

	return nil
}

// Calculate settles the current entries and keeps the result on display.
func (r *Round) Calculate() (Settlement, error) {
	if r.phase != PhaseCalculate {
		return Settlement{}, ErrWrongPhase
	}

	s := Settle(r.bill, r.payerShare, r.contributions)
	r.result = &s

	return s, nil
}

func (r *Round) Dismiss() {
	r.result = nil
}

// Reset starts a new round. Free-form roster additions are kept. A spinning
// wheel cannot be abandoned.
func (r *Round) Reset() error {
	if r.wheel.State() == WheelSpinning {
		return ErrWheelBusy
	}

	r.selection.Clear()
	r.wheel.Reset()
	r.phase = PhaseSelect
	r.payer = ""
	r.bill = ""
	r.payerShare = ""
	r.contributions = make(map[string]string)
	r.result = nil

	return nil
}

type Contribution struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// RoundSnapshot is a copy of the round that is safe to hand to other
// goroutines.
type RoundSnapshot struct {
	Phase         Phase
	Roster        []string
	Selected      []string
	CanProceed    bool
	Wheel         WheelState
	Rotation      float64
	Payer         string
	Bill          string
	PayerShare    string
	Contributions []Contribution
	Result        *Settlement
}

func (r *Round) Snapshot() RoundSnapshot {
	selected := r.selection.Names()

	snap := RoundSnapshot{
		Phase:      r.phase,
		Roster:     r.roster.Names(),
		Selected:   selected,
		CanProceed: r.selection.CanProceed(),
		Wheel:      r.wheel.State(),
		Rotation:   r.wheel.Rotation(),
		Payer:      r.payer,
		Bill:       r.bill,
		PayerShare: r.payerShare,
	}

	for _, name := range selected {
		if amount, ok := r.contributions[name]; ok {
			snap.Contributions = append(snap.Contributions, Contribution{Name: name, Amount: amount})
		}
	}

	if r.result != nil {
		result := *r.result
		snap.Result = &result
	}

	return snap
}
