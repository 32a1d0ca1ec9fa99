// Package duration converts step estimates between stored minutes and
// the unit a person would naturally read them in.
package duration

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// MinutesPerDay is one working day, not a calendar day
const MinutesPerDay = 480

const MinutesPerHour = 60

// NotSetLabel is shown for a missing or zero estimate
const NotSetLabel = "未设置"

// Unit of a displayed estimate
type Unit string

const (
	Minutes Unit = "minutes"
	Hours   Unit = "hours"
	Days    Unit = "days"
)

// Units lists the selectable units, finest first
var Units = []Unit{Minutes, Hours, Days}

// Label returns the unit's display name
func (u Unit) Label() string {
	switch u {
	case Hours:
		return "小时"
	case Days:
		return "天"
	default:
		return "分钟"
	}
}

// ParseUnit accepts the unit names and their short forms
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minutes", "minute", "min", "m", "分钟":
		return Minutes, nil
	case "hours", "hour", "h", "小时":
		return Hours, nil
	case "days", "day", "d", "天":
		return Days, nil
	}
	return "", fmt.Errorf("unknown duration unit %q", s)
}

// Display is an estimate expressed in its natural unit
type Display struct {
	Value float64
	Unit  Unit
	Label string
}

// ToDisplay picks the coarsest unit that shows minutes exactly, falling
// back to hours with one decimal
func ToDisplay(minutes *int) Display {
	if minutes == nil || *minutes == 0 {
		return Display{Value: 0, Unit: Minutes, Label: NotSetLabel}
	}
	m := *minutes

	if m >= MinutesPerDay && m%MinutesPerDay == 0 {
		days := m / MinutesPerDay
		return Display{Value: float64(days), Unit: Days, Label: fmt.Sprintf("%d天", days)}
	}

	if m >= MinutesPerHour {
		if m%MinutesPerHour == 0 {
			hours := m / MinutesPerHour
			return Display{Value: float64(hours), Unit: Hours, Label: fmt.Sprintf("%d小时", hours)}
		}
		hours := math.Round(float64(m)/MinutesPerHour*10) / 10
		return Display{Value: hours, Unit: Hours, Label: fmt.Sprintf("%.1f小时", hours)}
	}

	return Display{Value: float64(m), Unit: Minutes, Label: fmt.Sprintf("%d分钟", m)}
}

// Of is ToDisplay for a plain minute count
func Of(minutes int) Display {
	return ToDisplay(&minutes)
}

// ToMinutes converts a value in unit back to whole minutes, rounding to
// the nearest minute
func ToMinutes(value float64, unit Unit) int {
	return int(math.Round(value * unit.minutes()))
}

// MaxMinutes is the largest estimate the backend stores
const MaxMinutes = math.MaxInt32

var (
	ErrInvalidValue = errors.New("estimate must be a non-negative number")
	ErrTooLarge     = errors.New("estimate is too large")
)

// Validate rejects values no estimate in unit can hold
func Validate(value float64, unit Unit) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return ErrInvalidValue
	}
	if math.Round(value*unit.minutes()) > MaxMinutes {
		return ErrTooLarge
	}
	return nil
}

func (u Unit) minutes() float64 {
	switch u {
	case Days:
		return MinutesPerDay
	case Hours:
		return MinutesPerHour
	default:
		return 1
	}
}

// Draft is an estimate being edited: a typed value in a chosen unit
type Draft struct {
	Value float64
	Unit  Unit
}

// DraftOf seeds a draft from a stored estimate
func DraftOf(minutes *int) Draft {
	d := ToDisplay(minutes)
	return Draft{Value: d.Value, Unit: d.Unit}
}

// Minutes is the stored form of the draft
func (d Draft) Minutes() int {
	return ToMinutes(d.Value, d.Unit)
}

// SameDuration reports whether two drafts store the same minutes
func SameDuration(a, b Draft) bool {
	return a.Minutes() == b.Minutes()
}
