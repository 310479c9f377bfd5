package backend

import (
	"context"
	"fmt"
	"strings"
)

// EchoAdapter answers without calling any model. It is used for dry runs:
// the reply names the stage and quotes the first line of the instructions.
type EchoAdapter struct {
	name string
}

// NewEchoAdapter creates an offline backend.
func NewEchoAdapter(cfg Config) *EchoAdapter {
	return &EchoAdapter{name: cfg.Name}
}

func (a *EchoAdapter) Name() string { return a.name }

func (a *EchoAdapter) Close() error { return nil }

func (a *EchoAdapter) Send(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, wrapError(a.name, err, 0)
	}
	first, _, _ := strings.Cut(strings.TrimSpace(req.Instructions), "\n")
	return Response{
		Content: fmt.Sprintf("[dry run: %s] %s", req.Stage, first),
	}, nil
}
