package basket

import (
	"slices"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
)

//Selection is a committed set of sensor ids together with the technician's remarks
type Selection struct {
	SensorIDs []string `json:"sensorIds"`
	Remarks   string   `json:"remarks"`
}

//Basket collects sensor ids picked during one site visit. It keeps insertion
//order, holds each id at most once, and is not safe for concurrent use.
type Basket struct {
	ids     []string
	remarks string
}

//New returns an empty Basket
func New() *Basket {
	return &Basket{ids: []string{}}
}

//Add puts id in the basket and reports whether it was not already present
func (b *Basket) Add(id string) bool {
	if b.Contains(id) {
		return false
	}
	b.ids = append(b.ids, id)
	return true
}

//Remove takes id out of the basket and reports whether it was present
func (b *Basket) Remove(id string) bool {
	i := slices.Index(b.ids, id)
	if i < 0 {
		return false
	}
	b.ids = slices.Delete(b.ids, i, i+1)
	return true
}

//Contains reports whether id has been picked
func (b *Basket) Contains(id string) bool {
	return slices.Contains(b.ids, id)
}

//IDs returns a copy of the selected ids in the order they were added
func (b *Basket) IDs() []string {
	return slices.Clone(b.ids)
}

//Len returns the number of picked sensors
func (b *Basket) Len() int {
	return len(b.ids)
}

//Remarks returns the remarks entered so far
func (b *Basket) Remarks() string {
	return b.remarks
}

//SetRemarks replaces the remarks
func (b *Basket) SetRemarks(remarks string) {
	b.remarks = remarks
}

//Commit finalizes the selection with remarks and empties the basket and its
//remarks. An empty basket is rejected and left as it was.
func (b *Basket) Commit(remarks string) (Selection, error) {
	if len(b.ids) == 0 {
		return Selection{}, domain.NewValidationError(domain.ErrEmptySelection, "no sensors selected")
	}

	selection := Selection{
		SensorIDs: b.IDs(),
		Remarks:   remarks,
	}

	b.ids = []string{}
	b.remarks = ""

	return selection, nil
}
