// Package petstore is an example service exercising every verb, location
// and field shape the framework supports.
package petstore

import "time"

// Status is the adoption status of a pet.
type Status string

const (
	// StatusAvailable indicates the pet can be adopted.
	StatusAvailable Status = "available"
	// StatusPending indicates an adoption is in progress.
	StatusPending Status = "pending"
	// StatusAdopted indicates the pet has a home.
	StatusAdopted Status = "adopted"
)

// PetID identifies a single pet.
type PetID struct {
	// ID is the unique identifier for the pet.
	ID int64 `json:"id" description:"Pet identifier"`
}

// Pet is a pet in the store.
type Pet struct {
	// ID is assigned by the store on creation.
	ID int64 `json:"id"`
	// Name is the pet's name (required).
	Name string `json:"name" description:"The pet's name" validate:"required"`
	// Species names the genome the pet belongs to.
	Species string `json:"species,omitempty" description:"Species, e.g. canis-familiaris"`
	// Tags are free-form labels.
	Tags []string `json:"tags,omitempty"`
	// Status is the adoption status.
	Status Status `json:"status,omitempty" validate:"omitempty,oneof=available pending adopted"`
	// Attributes holds arbitrary key/value facts about the pet.
	Attributes map[string]string `json:"attributes,omitempty"`
	// CreatedAt is set by the store on creation.
	CreatedAt time.Time `json:"created_at"`
}

// ListPetsRequest filters and pages the pet listing.
type ListPetsRequest struct {
	// Species keeps only pets of the given species.
	Species string `json:"species,omitempty"`
	// Tags keeps only pets carrying every given tag.
	Tags []string `json:"tags,omitempty"`
	// Status keeps only pets with the given status.
	Status Status `json:"status,omitempty"`
	// Limit is the maximum number of pets to return. Zero means no limit.
	Limit int `json:"limit,omitempty" validate:"gte=0,lte=100"`
	// Offset is the number of pets to skip.
	Offset int `json:"offset,omitempty" validate:"gte=0"`
}

// PetList is one page of pets.
type PetList struct {
	Pets []Pet `json:"pets"`
	// Total is the number of pets matching the filter.
	Total int `json:"total"`
}

// UpdateStatusRequest moves a pet to a new adoption status.
type UpdateStatusRequest struct {
	ID     int64  `json:"id"`
	Status Status `json:"status" validate:"required,oneof=available pending adopted"`
}

// GenomeRequest names a species.
type GenomeRequest struct {
	Species string `json:"species"`
}

// Gene is one gene of a genome.
type Gene struct {
	Name       string  `json:"name"`
	Chromosome int     `json:"chromosome"`
	Expression float64 `json:"expression"`
}

// Genome describes the genes of a species.
type Genome struct {
	Species string `json:"species"`
	Genes   []Gene `json:"genes"`
	// Markers indexes notable genes by marker name.
	Markers map[string]Gene `json:"markers,omitempty"`
	// Sequence is the raw reference sequence.
	Sequence []byte `json:"sequence,omitempty"`
}
