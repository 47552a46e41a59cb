package model

import (
	"bytes"
	"encoding/json"
)

// Ref is a nullable reference to a container. The zero value is the
// unassigned state. ID is always the nil uuid when Valid is false, so refs
// compare correctly with ==.
type Ref struct {
	ID    ContainerID
	Valid bool
}

// RefTo returns an assigned reference.
func RefTo(id ContainerID) Ref { return Ref{ID: id, Valid: true} }

// Unassigned returns the null reference.
func Unassigned() Ref { return Ref{} }

func (r Ref) String() string {
	if !r.Valid {
		return "unassigned"
	}
	return r.ID.String()
}

// MarshalJSON encodes an unassigned ref as JSON null.
func (r Ref) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*r = Ref{}
		return nil
	}
	var id ContainerID
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	*r = RefTo(id)
	return nil
}
