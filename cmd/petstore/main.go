// Command petstore serves the example pet store, prints its Swagger
// document and calls it with the routerpc client.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

// Globals are flags shared by every command.
type Globals struct {
	LogLevel  slog.Level `help:"Minimum log level (debug, info, warn, error)." default:"info" env:"PETSTORE_LOG_LEVEL" name:"log-level"`
	LogFormat string     `help:"Log output format." enum:"text,json" default:"text" name:"log-format"`
}

// streams is bound into every command's Run so tests can capture output.
type streams struct {
	stdout io.Writer
	stderr io.Writer
}

func (g *Globals) logger(s *streams) *slog.Logger {
	opts := &slog.HandlerOptions{Level: g.LogLevel}
	if g.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(s.stderr, opts))
	}
	return slog.New(slog.NewTextHandler(s.stderr, opts))
}

type CLI struct {
	Globals

	Version VersionCmd `cmd:"" help:"Print version information."`
	Serve   ServeCmd   `cmd:"" help:"Serve the pet store over HTTP."`
	Schema  SchemaCmd  `cmd:"" help:"Print the Swagger 2.0 document of the pet store."`
	Call    CallCmd    `cmd:"" help:"Call a running pet store."`
}

type VersionCmd struct{}

func (c *VersionCmd) Run(s *streams) error {
	_, err := io.WriteString(s.stdout, Version()+"\n")
	return err
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	return kong.New(cli, append([]kong.Option{
		kong.Name("petstore"),
		kong.Description("Example routerpc service: pets, genomes and their Swagger document."),
		kong.UsageOnError(),
	}, opts...)...)
}

func main() {
	cli := &CLI{}
	parser, err := newParser(cli)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	err = ctx.Run(&cli.Globals, &streams{stdout: os.Stdout, stderr: os.Stderr})
	ctx.FatalIfErrorf(err)
}
