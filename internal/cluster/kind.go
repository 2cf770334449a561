package cluster

import (
	"bufio"
	"context"
	"strings"

	"coffeectl/internal/config"
	"coffeectl/internal/runner"
)

type kind struct {
	name    string
	context string
	runner  runner.Runner
}

func (k *kind) Backend() config.Backend { return config.BackendKind }
func (k *kind) Name() string            { return k.name }
func (k *kind) ContextName() string     { return k.context }
func (k *kind) SharesHostImages() bool  { return false }

func (k *kind) Status(ctx context.Context) (Status, error) {
	res, err := k.runner.Run(ctx, "kind", "get", "clusters")
	if err != nil {
		return Status{}, provisionErr(config.BackendKind, "list clusters", res, err)
	}
	// "No kind clusters found." goes to stderr, stdout then is empty
	scanner := bufio.NewScanner(strings.NewReader(res.Stdout))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == k.name {
			return Status{Exists: true, Running: true}, nil
		}
	}
	return Status{}, nil
}

func (k *kind) Create(ctx context.Context) error {
	res, err := k.runner.Run(ctx, "kind", "create", "cluster", "--name", k.name, "--wait", "120s")
	if err != nil {
		pe := provisionErr(config.BackendKind, "create cluster "+k.name, res, err)
		pe.Hint = "check `docker info` has enough resources, then retry; remove leftovers with `kind delete cluster --name " + k.name + "`"
		return pe
	}
	return nil
}

func (k *kind) Delete(ctx context.Context) error {
	res, err := k.runner.Run(ctx, "kind", "delete", "cluster", "--name", k.name)
	if err != nil {
		return provisionErr(config.BackendKind, "delete cluster "+k.name, res, err)
	}
	return nil
}

func (k *kind) LoadImage(ctx context.Context, image string) error {
	res, err := k.runner.Run(ctx, "kind", "load", "docker-image", image, "--name", k.name)
	if err != nil {
		pe := provisionErr(config.BackendKind, "load image "+image, res, err)
		pe.Hint = "build the image first with `coffeectl build`"
		return pe
	}
	return nil
}
