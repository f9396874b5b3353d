package petstore

import (
	"cmp"
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/broady/routerpc"
)

// Store is an in-memory pet store. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	pets    map[int64]Pet
	genomes map[string]Genome
	nextID  int64
	now     func() time.Time
}

// NewStore returns a store seeded with a few pets and genomes.
func NewStore() *Store {
	s := &Store{
		pets:    make(map[int64]Pet),
		genomes: make(map[string]Genome),
		nextID:  1,
		now:     time.Now,
	}
	for _, p := range []Pet{
		{Name: "Rex", Species: "canis-familiaris", Tags: []string{"good"}, Status: StatusAvailable},
		{Name: "Tom", Species: "felis-catus", Status: StatusPending},
	} {
		s.add(p)
	}
	s.genomes["canis-familiaris"] = Genome{
		Species: "canis-familiaris",
		Genes: []Gene{
			{Name: "MC1R", Chromosome: 5, Expression: 0.8},
			{Name: "FGF5", Chromosome: 32, Expression: 0.3},
		},
		Markers:  map[string]Gene{"coat": {Name: "MC1R", Chromosome: 5, Expression: 0.8}},
		Sequence: []byte("GATTACA"),
	}
	s.genomes["felis-catus"] = Genome{
		Species: "felis-catus",
		Genes:   []Gene{{Name: "TYR", Chromosome: 4, Expression: 0.5}},
	}
	return s
}

func (s *Store) add(p Pet) Pet {
	p.ID = s.nextID
	s.nextID++
	if p.Status == "" {
		p.Status = StatusAvailable
	}
	p.CreatedAt = s.now().UTC()
	s.pets[p.ID] = p
	return p
}

func (s *Store) GetPet(ctx context.Context, req *PetID) (*Pet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pets[req.ID]
	if !ok {
		return nil, routerpc.Errorf(routerpc.CodeNotFound, "pet %d not found", req.ID)
	}
	return &p, nil
}

func (s *Store) CreatePet(ctx context.Context, req *Pet) (*Pet, error) {
	if req.Species != "" {
		s.mu.RLock()
		_, known := s.genomes[req.Species]
		s.mu.RUnlock()
		if !known {
			return nil, routerpc.Errorf(routerpc.CodeInvalidArgument, "unknown species %q", req.Species).
				WithDetail("species", req.Species)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.add(*req)
	return &p, nil
}

// UpdatePet replaces every field of a pet except its ID and creation time.
func (s *Store) UpdatePet(ctx context.Context, req *Pet) (*Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.pets[req.ID]
	if !ok {
		return nil, routerpc.Errorf(routerpc.CodeNotFound, "pet %d not found", req.ID)
	}
	p := *req
	p.CreatedAt = old.CreatedAt
	if p.Status == "" {
		p.Status = old.Status
	}
	s.pets[p.ID] = p
	return &p, nil
}

func (s *Store) UpdateStatus(ctx context.Context, req *UpdateStatusRequest) (*Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pets[req.ID]
	if !ok {
		return nil, routerpc.Errorf(routerpc.CodeNotFound, "pet %d not found", req.ID)
	}
	if p.Status == StatusAdopted {
		return nil, routerpc.Errorf(routerpc.CodeConflict, "pet %d is already adopted", req.ID)
	}
	p.Status = req.Status
	s.pets[p.ID] = p
	return &p, nil
}

func (s *Store) DeletePet(ctx context.Context, req *PetID) (*routerpc.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pets[req.ID]; !ok {
		return nil, routerpc.Errorf(routerpc.CodeNotFound, "pet %d not found", req.ID)
	}
	delete(s.pets, req.ID)
	return &routerpc.Empty{}, nil
}

// ListPets returns pets in ID order.
func (s *Store) ListPets(ctx context.Context, req *ListPetsRequest) (*PetList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Pet, 0, len(s.pets))
	for _, p := range s.pets {
		if req.Species != "" && p.Species != req.Species {
			continue
		}
		if req.Status != "" && p.Status != req.Status {
			continue
		}
		if !hasAll(p.Tags, req.Tags) {
			continue
		}
		matched = append(matched, p)
	}
	slices.SortFunc(matched, func(a, b Pet) int { return cmp.Compare(a.ID, b.ID) })

	list := &PetList{Pets: []Pet{}, Total: len(matched)}
	if req.Offset < len(matched) {
		matched = matched[req.Offset:]
		if req.Limit > 0 && req.Limit < len(matched) {
			matched = matched[:req.Limit]
		}
		list.Pets = matched
	}
	return list, nil
}

func hasAll(tags, want []string) bool {
	for _, w := range want {
		if !slices.Contains(tags, w) {
			return false
		}
	}
	return true
}

func (s *Store) GetGenome(ctx context.Context, req *GenomeRequest) (*Genome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.genomes[req.Species]
	if !ok {
		return nil, routerpc.Errorf(routerpc.CodeNotFound, "no genome for species %q", req.Species)
	}
	return &g, nil
}

// Endpoints of PetService. Clients pass these to routerpc.Call.
var (
	GetPetEndpoint = routerpc.GET("./pet/{id}", (*Store).GetPet).
			WithDescription("Fetch a pet by ID")
	CreatePetEndpoint = routerpc.POST("./pet", (*Store).CreatePet).
				WithDescription("Add a pet to the store").
				WithStatus(http.StatusCreated)
	UpdatePetEndpoint = routerpc.PUT("./pet/{id}", (*Store).UpdatePet).
				WithDescription("Replace a pet")
	UpdateStatusEndpoint = routerpc.PATCH("./pet/{id}/status", (*Store).UpdateStatus).
				WithDescription("Change the adoption status of a pet")
	DeletePetEndpoint = routerpc.DELETE("./pet/{id}", (*Store).DeletePet).
				WithDescription("Remove a pet")
	ListPetsEndpoint = routerpc.GET("./pets", (*Store).ListPets).
				WithDescription("List pets matching a filter")
	GetGenomeEndpoint = routerpc.GET("./genome/{species}", (*Store).GetGenome).
				WithDescription("Fetch the genome of a species")
)

// ServiceName is the name PetService registers under.
const ServiceName = "PetService"

// NewService declares PetService served by store.
func NewService(store *Store) *routerpc.Service[*Store] {
	return routerpc.NewService[*Store](ServiceName).
		Method("get_pet", GetPetEndpoint).
		Method("create_pet", CreatePetEndpoint).
		Method("update_pet", UpdatePetEndpoint).
		Method("update_status", UpdateStatusEndpoint).
		Method("delete_pet", DeletePetEndpoint).
		Method("list_pets", ListPetsEndpoint).
		Method("get_genome", GetGenomeEndpoint).
		Provide(store)
}
