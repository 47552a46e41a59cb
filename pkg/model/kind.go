package model

import "fmt"

// ContainerKind names one of the three orthogonal groupings an item can be
// assigned to. Every item holds at most one container per kind.
type ContainerKind string

const (
	KindCategory ContainerKind = "category"
	KindBag      ContainerKind = "bag"
	KindTraveler ContainerKind = "traveler"
)

// Kinds returns all container kinds in their canonical order.
func Kinds() []ContainerKind {
	return []ContainerKind{KindCategory, KindBag, KindTraveler}
}

func ParseKind(s string) (ContainerKind, error) {
	switch ContainerKind(s) {
	case KindCategory, KindBag, KindTraveler:
		return ContainerKind(s), nil
	}
	return "", fmt.Errorf("unknown container kind %q", s)
}

func (k ContainerKind) String() string { return string(k) }
