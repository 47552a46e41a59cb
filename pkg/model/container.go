package model

// Container is a grouping an item can be assigned to: a category, a bag or
// a traveler. Containers are scoped to one list and never shared.
type Container struct {
	ID     ContainerID   `json:"id"`
	ListID ListID        `json:"listId"`
	Kind   ContainerKind `json:"kind"`
	Name   string        `json:"name"`
	Seq    uint64        `json:"seq"`
}

// List is a packing list. LastSeq is the highest sequence number the list
// has ever issued; it survives deletion of the entities that carried it.
type List struct {
	ID      ListID `json:"id"`
	Name    string `json:"name"`
	LastSeq uint64 `json:"lastSeq"`
}
