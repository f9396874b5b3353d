package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/broady/routerpc"
	"github.com/broady/routerpc/internal/petstore"
	"github.com/broady/routerpc/openapi"
)

// Remote holds the flags every call subcommand uses to reach the server.
type Remote struct {
	URL     string        `help:"Base URL of the pet store." default:"http://localhost:8080" env:"PETSTORE_URL" name:"url"`
	Timeout time.Duration `help:"Per-call timeout." default:"10s"`
	Gzip    bool          `help:"Ask for gzip-compressed responses."`
}

func (r *Remote) client() (*routerpc.Client, error) {
	opts := []routerpc.ClientOption{routerpc.WithTimeout(r.Timeout)}
	if r.Gzip {
		opts = append(opts, routerpc.WithCompression())
	}
	return routerpc.NewClient(r.URL, opts...)
}

type CallCmd struct {
	GetPet    GetPetCmd    `cmd:"" name:"get-pet" help:"Fetch a pet by ID."`
	ListPets  ListPetsCmd  `cmd:"" name:"list-pets" help:"List pets."`
	CreatePet CreatePetCmd `cmd:"" name:"create-pet" help:"Add a pet."`
	DeletePet DeletePetCmd `cmd:"" name:"delete-pet" help:"Remove a pet."`
	Genome    GenomeCmd    `cmd:"" help:"Fetch the genome of a species."`
	Schema    RemoteSchema `cmd:"" help:"Fetch the server's Swagger document."`
}

// call runs fn with a client for r and prints its result as JSON.
func call[Res any](r *Remote, s *streams, fn func(context.Context, *routerpc.Client) (*Res, error)) error {
	c, err := r.client()
	if err != nil {
		return err
	}
	defer c.Close()
	res, err := fn(context.Background(), c)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(s.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

type GetPetCmd struct {
	Remote
	ID int64 `arg:"" help:"Pet ID."`
}

func (c *GetPetCmd) Run(s *streams) error {
	return call(&c.Remote, s, func(ctx context.Context, cl *routerpc.Client) (*petstore.Pet, error) {
		return routerpc.Call(ctx, cl, petstore.GetPetEndpoint, &petstore.PetID{ID: c.ID})
	})
}

type ListPetsCmd struct {
	Remote
	Species string   `help:"Only pets of this species."`
	Tag     []string `help:"Only pets with every given tag."`
	Status  string   `help:"Only pets with this status."`
	Limit   int      `help:"Maximum number of pets."`
	Offset  int      `help:"Number of pets to skip."`
}

func (c *ListPetsCmd) Run(s *streams) error {
	req := &petstore.ListPetsRequest{
		Species: c.Species,
		Tags:    c.Tag,
		Status:  petstore.Status(c.Status),
		Limit:   c.Limit,
		Offset:  c.Offset,
	}
	return call(&c.Remote, s, func(ctx context.Context, cl *routerpc.Client) (*petstore.PetList, error) {
		return routerpc.Call(ctx, cl, petstore.ListPetsEndpoint, req)
	})
}

type CreatePetCmd struct {
	Remote
	Name    string   `arg:"" help:"Pet name."`
	Species string   `help:"Species of the pet."`
	Tag     []string `help:"Tags to attach."`
}

func (c *CreatePetCmd) Run(s *streams) error {
	req := &petstore.Pet{Name: c.Name, Species: c.Species, Tags: c.Tag}
	return call(&c.Remote, s, func(ctx context.Context, cl *routerpc.Client) (*petstore.Pet, error) {
		return routerpc.Call(ctx, cl, petstore.CreatePetEndpoint, req)
	})
}

type DeletePetCmd struct {
	Remote
	ID int64 `arg:"" help:"Pet ID."`
}

func (c *DeletePetCmd) Run(s *streams) error {
	return call(&c.Remote, s, func(ctx context.Context, cl *routerpc.Client) (*routerpc.Empty, error) {
		return routerpc.Call(ctx, cl, petstore.DeletePetEndpoint, &petstore.PetID{ID: c.ID})
	})
}

type GenomeCmd struct {
	Remote
	Species string `arg:"" help:"Species name."`
}

func (c *GenomeCmd) Run(s *streams) error {
	return call(&c.Remote, s, func(ctx context.Context, cl *routerpc.Client) (*petstore.Genome, error) {
		return routerpc.Call(ctx, cl, petstore.GetGenomeEndpoint, &petstore.GenomeRequest{Species: c.Species})
	})
}

type RemoteSchema struct {
	Remote
	Format string `help:"Output format." enum:"json,yaml" default:"json" short:"f"`
}

func (c *RemoteSchema) Run(s *streams) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	defer cl.Close()
	doc, err := routerpc.Call(context.Background(), cl, openapi.SchemaEndpoint, nil)
	if err != nil {
		return err
	}
	return writeDocument(s, doc, c.Format)
}
