package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/broady/routerpc/openapi"
)

type SchemaCmd struct {
	Format   string `help:"Output format." enum:"json,yaml" default:"json" short:"f"`
	Validate bool   `help:"Validate the document before printing it."`
}

func (c *SchemaCmd) Run(s *streams) error {
	app, err := buildApp(appConfig{logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		return err
	}
	doc := openapi.Generate(app.Graph(), openapi.Options{
		Title:      "Pet Store",
		Version:    Version(),
		MediaTypes: []string{app.Codec().MediaType()},
	})
	if c.Validate {
		if err := doc.Validate(context.Background()); err != nil {
			return fmt.Errorf("invalid document: %w", err)
		}
	}
	return writeDocument(s, doc, c.Format)
}

func writeDocument(s *streams, doc *openapi.Document, format string) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case "yaml":
		data, err = doc.YAML()
	default:
		data, err = doc.JSON()
		data = append(data, '\n')
	}
	if err != nil {
		return err
	}
	_, err = s.stdout.Write(data)
	return err
}
