package routerpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type PetID struct {
	ID int `json:"id"`
}

type Pet struct {
	ID   int    `json:"id"`
	Name string `json:"name" validate:"required"`
	Tag  string `json:"tag,omitempty"`
}

type PetFilter struct {
	Tag   string   `json:"tag"`
	Limit int      `json:"limit"`
	Names []string `json:"names"`
}

type PetList struct {
	Pets []Pet `json:"pets"`
}

// lookup mixes a path field with query fields of the same request.
type lookup struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// petStore is a small in-memory service used across the package tests.
type petStore struct {
	mu   sync.Mutex
	pets map[int]Pet
	next int
}

func newPetStore() *petStore {
	return &petStore{pets: map[int]Pet{1: {ID: 1, Name: "Rex", Tag: "dog"}}, next: 2}
}

func (s *petStore) GetPet(ctx context.Context, req *PetID) (*Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pets[req.ID]
	if !ok {
		return nil, Errorf(CodeNotFound, "pet %d not found", req.ID)
	}
	return &p, nil
}

func (s *petStore) CreatePet(ctx context.Context, req *Pet) (*Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *req
	p.ID = s.next
	s.next++
	s.pets[p.ID] = p
	return &p, nil
}

func (s *petStore) UpdatePet(ctx context.Context, req *Pet) (*Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pets[req.ID]; !ok {
		return nil, Errorf(CodeNotFound, "pet %d not found", req.ID)
	}
	s.pets[req.ID] = *req
	return req, nil
}

func (s *petStore) DeletePet(ctx context.Context, req *PetID) (*Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pets, req.ID)
	return &Empty{}, nil
}

func (s *petStore) ListPets(ctx context.Context, req *PetFilter) (*PetList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := &PetList{Pets: []Pet{}}
	for id := 1; id < s.next; id++ {
		p, ok := s.pets[id]
		if !ok || (req.Tag != "" && p.Tag != req.Tag) {
			continue
		}
		list.Pets = append(list.Pets, p)
		if req.Limit > 0 && len(list.Pets) == req.Limit {
			break
		}
	}
	return list, nil
}

func (s *petStore) Lookup(ctx context.Context, req *lookup) (*lookup, error) {
	return req, nil
}

func (s *petStore) Panic(ctx context.Context, req *Empty) (*Empty, error) {
	panic("boom")
}

var (
	getPet    = GET("./pet/{id}", (*petStore).GetPet).WithDescription("Fetch a pet")
	createPet = POST("./pet", (*petStore).CreatePet).WithStatus(http.StatusCreated)
	updatePet = PUT("./pet/{id}", (*petStore).UpdatePet)
	deletePet = DELETE("./pet/{id}", (*petStore).DeletePet)
	listPets  = GET("./pets", (*petStore).ListPets)
	lookupPet = GET("./lookup/{id}", (*petStore).Lookup)
	panicky   = POST("./panic", (*petStore).Panic)
)

func petService(store *petStore) *Service[*petStore] {
	return NewService[*petStore]("PetService").
		Method("get_pet", getPet).
		Method("create_pet", createPet).
		Method("update_pet", updatePet).
		Method("delete_pet", deletePet).
		Method("list_pets", listPets).
		Method("lookup", lookupPet).
		Method("panic", panicky).
		Provide(store)
}

// newTestApp returns an app serving a fresh pet store.
func newTestApp(t *testing.T) (*App, *petStore) {
	t.Helper()
	store := newPetStore()
	app := NewApp()
	if err := app.Register(petService(store)); err != nil {
		t.Fatalf("register: %v", err)
	}
	return app, store
}

// newTestServer serves app over a real listener and returns a client for it.
func newTestServer(t *testing.T, app *App, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
