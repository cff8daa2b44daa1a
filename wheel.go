/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"math"
	"math/rand/v2"
)

// MinTurns is the number of full turns every spin makes before the random
// offset is applied.
const MinTurns = 5

var (
	ErrTooFewParticipants = errors.New("at least two participants are required")
	ErrAlreadySpinning    = errors.New("the wheel is already spinning")
	ErrAlreadySettled     = errors.New("the wheel has settled; reset to spin again")
	ErrNotSpinning        = errors.New("the wheel is not spinning")
)

// RandomSource yields uniformly distributed values in [0, 1).
type RandomSource interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 {
	return rand.Float64()
}

type WheelState int

const (
	WheelIdle WheelState = iota
	WheelSpinning
	WheelSettled
)

func (s WheelState) String() string {
	switch s {
	case WheelIdle:
		return "idle"
	case WheelSpinning:
		return "spinning"
	case WheelSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// SpinOutcome describes a spin that has been started. Clients animate
// towards Rotation; Winner is only revealed once the wheel lands.
type SpinOutcome struct {
	Rotation float64
	Index    int
	Winner   string
}

// Wheel picks a payer. Segment 0 begins under the pointer at 12 o'clock and
// segments run clockwise; the wheel itself also turns clockwise.
type Wheel struct {
	state    WheelState
	rotation float64
	pending  SpinOutcome
	winner   string
}

// WinnerIndex maps a total rotation onto one of n segments. It returns -1
// when n is too small to spin.
func WinnerIndex(rotation float64, n int) int {
	if n < MinParticipants {
		return -1
	}

	segment := 360 / float64(n)

	normalized := math.Mod(rotation, 360)
	if normalized < 0 {
		normalized += 360
	}

	index := int(math.Floor(float64(n)-normalized/segment)) % n
	if index < 0 {
		index += n
	}

	return index
}

// Spin starts the wheel. The winner is fixed now, but Land must be called
// before it is revealed.
func (w *Wheel) Spin(participants []string, rng RandomSource) (SpinOutcome, error) {
	switch {
	case len(participants) < MinParticipants:
		return SpinOutcome{}, ErrTooFewParticipants
	case w.state == WheelSpinning:
		return SpinOutcome{}, ErrAlreadySpinning
	case w.state == WheelSettled:
		return SpinOutcome{}, ErrAlreadySettled
	}

	if rng == nil {
		rng = globalSource{}
	}

	w.rotation += MinTurns*360 + rng.Float64()*360

	index := WinnerIndex(w.rotation, len(participants))

	w.pending = SpinOutcome{
		Rotation: w.rotation,
		Index:    index,
		Winner:   participants[index],
	}
	w.state = WheelSpinning

	return w.pending, nil
}

// Land finishes a spin and returns the winner.
func (w *Wheel) Land() (string, error) {
	if w.state != WheelSpinning {
		return "", ErrNotSpinning
	}

	w.state = WheelSettled
	w.winner = w.pending.Winner

	return w.winner, nil
}

func (w *Wheel) State() WheelState {
	return w.state
}

func (w *Wheel) Rotation() float64 {
	return w.rotation
}

// Winner is empty until the wheel has settled.
func (w *Wheel) Winner() string {
	return w.winner
}

func (w *Wheel) Reset() {
	*w = Wheel{}
}
